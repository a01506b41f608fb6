package metrics

type SessionRecorder interface {
	IncExchangesSent()
	IncExchangesAcked()
	IncExchangesLost()
	IncSessionsFailed()
}

type NoopSessionRecorder struct{}

func (NoopSessionRecorder) IncExchangesSent()  {}
func (NoopSessionRecorder) IncExchangesAcked() {}
func (NoopSessionRecorder) IncExchangesLost()  {}
func (NoopSessionRecorder) IncSessionsFailed() {}

type ServerRecorder interface {
	ConnOpened()
	ConnClosed()
	IncFramesEchoed()
	IncDatagramsReceived()
	IncDatagramsDropped()
	IncDatagramsReplied()
}

type NoopServerRecorder struct{}

func (NoopServerRecorder) ConnOpened()           {}
func (NoopServerRecorder) ConnClosed()           {}
func (NoopServerRecorder) IncFramesEchoed()      {}
func (NoopServerRecorder) IncDatagramsReceived() {}
func (NoopServerRecorder) IncDatagramsDropped()  {}
func (NoopServerRecorder) IncDatagramsReplied()  {}

type QueueRecorder interface {
	ObserveQueueDepth(depth int)
	IncQueueDrops()
}

type NoopQueueRecorder struct{}

func (NoopQueueRecorder) ObserveQueueDepth(depth int) {}
func (NoopQueueRecorder) IncQueueDrops()              {}

type ExportRecorder interface {
	AddRecordsExported(n int)
}

type NoopExportRecorder struct{}

func (NoopExportRecorder) AddRecordsExported(n int) {}
