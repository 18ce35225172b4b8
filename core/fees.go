package core

import (
	"math/big"

	"github.com/holiman/uint256"
)

// FeePolicy prices transaction admission in native currency. The fee is
// charged to the caller and credited to the treasury whether or not the
// contract succeeds.
type FeePolicy struct {
	// BaseFee is charged per transaction.
	BaseFee *uint256.Int
	// PerByteFee is charged per byte of transaction input.
	PerByteFee *uint256.Int
}

// GasPolicy bounds contract execution.
type GasPolicy struct {
	// GasPerByte is the intrinsic gas charged per input byte before the
	// guest runs.
	GasPerByte uint64
	// GasLimit is the per-transaction execution budget.
	GasLimit uint64
}

// DefaultFeePolicy mirrors the dev-chain pricing.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		BaseFee:    uint256.NewInt(1000),
		PerByteFee: uint256.NewInt(10),
	}
}

// DefaultGasPolicy mirrors the dev-chain limits.
func DefaultGasPolicy() GasPolicy {
	return GasPolicy{
		GasPerByte: 5,
		GasLimit:   10_000_000,
	}
}

// EstimateFee returns the admission fee for an input of the given size.
func (p FeePolicy) EstimateFee(inputLen int) *big.Int {
	fee := new(uint256.Int)
	if p.PerByteFee != nil {
		fee.Mul(p.PerByteFee, uint256.NewInt(uint64(inputLen)))
	}
	if p.BaseFee != nil {
		fee.Add(fee, p.BaseFee)
	}
	return fee.ToBig()
}

// IntrinsicGas returns the gas charged before the guest executes.
func (p GasPolicy) IntrinsicGas(inputLen int) uint64 {
	return p.GasPerByte * uint64(inputLen)
}
