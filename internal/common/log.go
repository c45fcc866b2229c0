package common

// Log is the parsed chain view of one event log.
type Log struct {
	BlockNumber      int64
	BlockHash        string
	TransactionHash  string
	TransactionIndex int64
	LogIndex         int64
	Address          string
	Data             string
	Topics           []string
}
