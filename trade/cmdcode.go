package trade

// Trade channel command codes.
const (
	cmdSubscribe   uint8 = 16
	cmdUnsubscribe uint8 = 17
	cmdNotify      uint8 = 18
)
