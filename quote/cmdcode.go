package quote

// Quote channel command codes.
const (
	cmdSubscription           uint8 = 5
	cmdSubscribe              uint8 = 6
	cmdUnsubscribe            uint8 = 7
	cmdTradingSession         uint8 = 8
	cmdTradingDays            uint8 = 9
	cmdStaticInfo             uint8 = 10
	cmdQuote                  uint8 = 11
	cmdOptionQuote            uint8 = 12
	cmdWarrantQuote           uint8 = 13
	cmdDepth                  uint8 = 14
	cmdBrokers                uint8 = 15
	cmdParticipants           uint8 = 16
	cmdTrades                 uint8 = 17
	cmdIntraday               uint8 = 18
	cmdCandlesticks           uint8 = 19
	cmdOptionChainDates       uint8 = 20
	cmdOptionChainStrikes     uint8 = 21
	cmdWarrantIssuers         uint8 = 22
	cmdSubscribeCandlestick   uint8 = 23
	cmdUnsubscribeCandlestick uint8 = 24
	pushCmdQuote              uint8 = 101
	pushCmdDepth              uint8 = 102
	pushCmdBrokers            uint8 = 103
	pushCmdTrade              uint8 = 104
	pushCmdCandlestick        uint8 = 105
)
