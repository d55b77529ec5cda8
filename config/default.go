package config

// DefaultValues is the default configuration of the wallet
const DefaultValues = `
[Log]
Level = "info"
Out = ["stdout"]
Format = "console"

[L1]
URL = "http://localhost:8545"
GasPriceIncPerc = 10
ReceiptTimeout = "60s"
IntervalReceiptLoop = "200ms"

[L2]
URL = "http://localhost:3050"
GasPriceIncPerc = 0
ReceiptTimeout = "60s"
IntervalReceiptLoop = "200ms"
GasPerPubdata = "50000"

[Etherscan]
URL = ""
APIKey = ""

[Wait]
PollInterval = "1s"
Timeout = "10m"

[Journal]
Driver = "sqlite3"
DSN = "zkwallet.db"

[Metrics]
Address = ""
`
