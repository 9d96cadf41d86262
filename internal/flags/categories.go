package flags

import "github.com/urfave/cli/v2"

const (
	RPCCategory       = "RPC ENDPOINTS"
	SignerCategory    = "SIGNER"
	StoreCategory     = "REQUEST STORE"
	ContractCategory  = "CONTRACTS"
	SchedulerCategory = "SCHEDULER TUNING"
	ProverCategory    = "PROVING PROVIDER"
	DisputeCategory   = "DISPUTE COORDINATOR"
	LoggingCategory   = "LOGGING AND DEBUGGING"
	MiscCategory      = "MISC"
)

func init() {
	cli.HelpFlag.(*cli.BoolFlag).Category = MiscCategory
	cli.VersionFlag.(*cli.BoolFlag).Category = MiscCategory
}
