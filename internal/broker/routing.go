package broker

// All instances share one subject for direct messages; every instance sees
// every event and keeps only those for receivers it holds.
var (
	StreamName    = "DIRECT"
	SubjectDirect = StreamName + "." + "messages"
)
