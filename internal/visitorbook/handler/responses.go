package handler

type TotalVisitorsResponse struct {
	TotalVisitors uint64 `json:"total_visitors"`
}

type VisitorResponse struct {
	Index   string `json:"index"`
	Visitor string `json:"visitor"`
}

type VisitedResponse struct {
	Address string `json:"address"`
	Visited bool   `json:"visited"`
}

type FeeResponse struct {
	Fee string `json:"fee"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type SnapshotResponse struct {
	Key           string `json:"key"`
	TotalVisitors uint64 `json:"total_visitors"`
}
