package metrics

import "expvar"

var (
	RoundsRun            = expvar.NewInt("rebalance_rounds_run")
	RoundErrors          = expvar.NewInt("rebalance_round_errors")
	RoundsSkippedBusy    = expvar.NewInt("rebalance_rounds_skipped_busy")
	WithdrawalsSubmitted = expvar.NewInt("rebalance_withdrawals_submitted")
	WithdrawalsSkipped   = expvar.NewInt("rebalance_withdrawals_skipped")
	WithdrawalsErrored   = expvar.NewInt("rebalance_withdrawals_errored")
	DepositsSubmitted    = expvar.NewInt("rebalance_deposits_submitted")
	DepositsSkipped      = expvar.NewInt("rebalance_deposits_skipped")
	DepositsErrored      = expvar.NewInt("rebalance_deposits_errored")
	LadderRetries        = expvar.NewInt("rebalance_ladder_retries")
)
