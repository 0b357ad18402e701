package config

type WorkerKeyStruct struct {
	// FlushQueue carries best-effort progress snapshots delivered over the
	// beacon/unload path. Consumed by worker.FlushWorker.
	FlushQueue string
}

var WorkerKey = &WorkerKeyStruct{
	FlushQueue: "flush_progress_queue",
}
