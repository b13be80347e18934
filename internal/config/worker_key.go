package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	PersistBufferQueue     string
	NotifyResultsQueue     string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	PersistBufferQueue:     "persist_buffer_queue",
	NotifyResultsQueue:     "notify_results_queue",
}
