package config

type WorkerKeyStruct struct {
	FinalizeRetryQueue string
}

var WorkerKey = &WorkerKeyStruct{
	FinalizeRetryQueue: "finalize_retry_queue",
}
