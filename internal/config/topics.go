package config

const (
	// TopicEnrichRun carries one message per started enrichment run. The body
	// only references the run plan stored in the blob store.
	TopicEnrichRun = "enrich.run"

	// ChannelEnrichWorker is the NSQ channel the enrichment workers share, so
	// each run is consumed by exactly one of them.
	ChannelEnrichWorker = "enrichment"
)
