// Package evm is a minimal EVM tracer that turns a single root-call
// transaction into a [witness.Block].
//
// It implements only the opcodes the fuzz targets exercise and records every
// step, stack and memory access, and calldata copy the way a circuit witness
// generator needs them.
package evm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Address is a 20 byte account address.
type Address [20]byte

// Account is a test account.
type Account struct {
	Address Address
	Balance uint256.Int
	Code    []byte
}

// Transaction is a root call from one account to another.
type Transaction struct {
	From  Address
	To    Address
	Input []byte
}

// TestContext is a fully specified execution environment: a block with
// accounts and a single transaction.
type TestContext struct {
	ChainID     uint64
	BlockNumber uint64
	Accounts    []Account
	Tx          Transaction
}

// MaxCalldataLength bounds transaction input accepted by [NewTestContext].
const MaxCalldataLength = 1 << 16

const defaultChainID = 1337

// AccountWithCodeAndSender returns the standard two-account layout: account 0
// holds code and account 1 is a funded sender without code.
func AccountWithCodeAndSender(code []byte) []Account {
	var a0, a1 Address
	a0[19] = 0x10
	a1[19] = 0x20

	return []Account{
		{Address: a0, Code: code},
		{Address: a1, Balance: *uint256.NewInt(1 << 40)},
	}
}

// NewTestContext builds a context where accounts[1] calls accounts[0] with
// calldata at the given block number.
func NewTestContext(accounts []Account, calldata []byte, blockNumber uint64) (*TestContext, error) {
	if len(accounts) < 2 {
		return nil, ErrNoAccounts
	}

	if len(accounts[0].Code) == 0 {
		return nil, fmt.Errorf("account %x: %w", accounts[0].Address, ErrNoCode)
	}

	if len(calldata) > MaxCalldataLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrCalldataTooLong, len(calldata), MaxCalldataLength)
	}

	input := make([]byte, len(calldata))
	copy(input, calldata)

	return &TestContext{
		ChainID:     defaultChainID,
		BlockNumber: blockNumber,
		Accounts:    accounts,
		Tx: Transaction{
			From:  accounts[1].Address,
			To:    accounts[0].Address,
			Input: input,
		},
	}, nil
}

// code returns the code of the transaction's callee.
func (c *TestContext) code() []byte {
	for _, acc := range c.Accounts {
		if acc.Address == c.Tx.To {
			return acc.Code
		}
	}

	return nil
}
