// Copyright 2024 The op-succinct-go Authors
// This file is part of the op-succinct-go library.
//
// The op-succinct-go library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The op-succinct-go library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.

// Package signer abstracts transaction signing and submission across a
// local private key, a remote web3signer HTTP endpoint, and a cloud HSM
// key reference (spec §4.2).
package signer

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// NumConfirmations is the number of block confirmations
// send_transaction_request waits for before returning (spec §4.2).
const NumConfirmations = 3

// ConfirmationTimeout bounds how long send_transaction_request waits for
// those confirmations before failing with a SignerFailure.
const ConfirmationTimeout = 60 * time.Second

// Signer is the closed tagged variant named in spec §9: local key, remote
// web3signer, or cloud HSM. All three fill/sign/submit/wait the same way;
// only step 2 (signing) differs.
type Signer interface {
	// Address is the account this signer transacts as.
	Address() common.Address

	// SendTransactionRequest fills from/nonce/gas via client, signs
	// according to the variant, submits, and waits for NumConfirmations
	// within ConfirmationTimeout.
	SendTransactionRequest(ctx context.Context, client *ethclient.Client, tx *types.DynamicFeeTx) (*types.Receipt, error)
}

// sendAndWait is shared glue: given an already-signed transaction, submits
// it and waits for its receipt to reach NumConfirmations.
func sendAndWait(ctx context.Context, client *ethclient.Client, signed *types.Transaction) (*types.Receipt, error) {
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return nil, errutil.Newf(errutil.KindSignerFailure, "tx %s not confirmed within %s", signed.Hash(), ConfirmationTimeout)
		case <-ticker.C:
			receipt, err := client.TransactionReceipt(ctx, signed.Hash())
			if err != nil {
				continue
			}
			head, err := client.BlockNumber(ctx)
			if err != nil {
				continue
			}
			if head >= receipt.BlockNumber.Uint64()+NumConfirmations-1 {
				return receipt, nil
			}
		}
	}
}

// fillTransaction populates from/nonce/gas fields left unset by the
// caller, matching step 1 of spec §4.2's send_transaction_request.
func fillTransaction(ctx context.Context, client *ethclient.Client, from common.Address, tx *types.DynamicFeeTx) error {
	if tx.Nonce == 0 {
		nonce, err := client.PendingNonceAt(ctx, from)
		if err != nil {
			return errutil.New(errutil.KindRPCUnavailable, err)
		}
		tx.Nonce = nonce
	}
	if tx.GasTipCap == nil || tx.GasFeeCap == nil {
		tipCap, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return errutil.New(errutil.KindRPCUnavailable, err)
		}
		head, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return errutil.New(errutil.KindRPCUnavailable, err)
		}
		baseFee := head.BaseFee
		feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(baseFee, big.NewInt(2)))
		tx.GasTipCap = tipCap
		tx.GasFeeCap = feeCap
	}
	if tx.Gas == 0 {
		msg := ethereum.CallMsg{
			From:      from,
			To:        tx.To,
			GasFeeCap: tx.GasFeeCap,
			GasTipCap: tx.GasTipCap,
			Value:     tx.Value,
			Data:      tx.Data,
		}
		gas, err := client.EstimateGas(ctx, msg)
		if err != nil {
			return errutil.New(errutil.KindRPCUnavailable, err)
		}
		tx.Gas = gas
	}
	return nil
}
