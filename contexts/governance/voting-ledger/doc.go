// Package votingledger implements the Voting Ledger service inside the
// governance context.
//
// The module orchestrates poll and vote submissions against an EVM ballot
// contract: writes land locally as provisional, a durable transaction record
// tracks each broadcast through confirmation, failure, or drop, and a
// reconciliation worker aligns local state with ledger-confirmed truth. Reads
// merge local provisional tallies with the contract's authoritative counts.
// Business rules live in the application/domain layers; infrastructure stays
// behind ports and adapters.
package votingledger
