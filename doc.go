// Package provision executes an ordered list of host-modifying operations as
// a compensating transaction with a durable, resumable step ledger.
//
// Overview
//
//  1. Implement Operation for each provisioning action, or build one from
//     functions with NewFuncOperation. Concrete actions usually embed
//     BaseOperation and drive the host through the host package.
//  2. Create a Store. NewFileStore persists the ledger as JSON with a backup
//     copy; NewMemoryStore is intended for tests.
//  3. Create a TransactionManager with NewTransactionManager and either
//     Initialize it with a fresh operation list or LoadExisting with the same
//     list a previous process used.
//  4. Call Execute (or Resume). On the first failure every operation executed
//     by that call is rolled back in reverse order, best effort; the ledger
//     keeps the failed step so a later Resume retries it.
//  5. After a successful run call Clear to remove the persisted ledger.
//
// Rollback is a compensating action, not two-phase commit: a rollback that
// fails is logged and reported in TransactionResult.RollbackErrors while the
// remaining rollbacks still run.
package provision
