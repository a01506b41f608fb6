package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "netperf ", log.LstdFlags|log.LUTC)
}
