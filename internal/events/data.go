package events

// TradeExecutedData is emitted whenever a grid level fill is detected.
type TradeExecutedData struct {
	Symbol     string
	Venue      string
	Side       string
	Quantity   float64
	Price      float64
	OrderID    string
	LevelIndex int
}

func (d *TradeExecutedData) EventType() EventType { return TradeExecuted }

// WorkerCrashedData is emitted when the supervisor observes a worker exit
// unexpectedly.
type WorkerCrashedData struct {
	Symbol       string
	Err          string
	RestartCount int
}

func (d *WorkerCrashedData) EventType() EventType { return WorkerCrashed }

// WorkerRestartedData is emitted after the supervisor successfully restarts
// a crashed worker.
type WorkerRestartedData struct {
	Symbol  string
	Attempt int
}

func (d *WorkerRestartedData) EventType() EventType { return WorkerRestarted }

// RiskAlertRaisedData is emitted by the risk monitor on a breach.
type RiskAlertRaisedData struct {
	AlertKey string
	Severity string
	Message  string
}

func (d *RiskAlertRaisedData) EventType() EventType { return RiskAlertRaised }

// RetrainTriggeredData is emitted when the trade counter shared by all
// workers has grown by the configured threshold since the last retrain.
type RetrainTriggeredData struct {
	Symbol     string
	TradeCount int
}

func (d *RetrainTriggeredData) EventType() EventType { return RetrainTriggered }

// VenueTransferredData is emitted after the capital manager completes an
// inter-venue capital transfer.
type VenueTransferredData struct {
	Asset     string
	Amount    float64
	Direction string
}

func (d *VenueTransferredData) EventType() EventType { return VenueTransferred }

// GridRecenteredData is emitted whenever a worker recenters its ladder.
type GridRecenteredData struct {
	Symbol     string
	OldCenter  float64
	NewCenter  float64
	LevelCount int
}

func (d *GridRecenteredData) EventType() EventType { return GridRecentered }

// SentimentShiftedData is emitted when the aggregated sentiment score
// crosses a configured alert threshold.
type SentimentShiftedData struct {
	Symbol string
	Score  float64
}

func (d *SentimentShiftedData) EventType() EventType { return SentimentShifted }

// ErrorOccurredData wraps an unhandled error surfaced for observability.
type ErrorOccurredData struct {
	Source string
	Err    string
}

func (d *ErrorOccurredData) EventType() EventType { return ErrorOccurred }
