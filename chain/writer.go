package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TxBackend is the transaction-submitting subset of the Ethereum RPC.
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Signer authorises transactions for the configured account. A declined or
// locked signer is reported as ErrTransactionRejected.
type Signer interface {
	Address() common.Address
	SignTx(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error)
}

// KeystoreSigner signs with an account held in a go-ethereum keystore.
type KeystoreSigner struct {
	store   *keystore.KeyStore
	account accounts.Account
}

// NewKeystoreSigner opens the keystore directory and unlocks the account
// with the supplied passphrase.
func NewKeystoreSigner(dir string, address common.Address, passphrase string) (*KeystoreSigner, error) {
	store := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	account, err := store.Find(accounts.Account{Address: address})
	if err != nil {
		return nil, fmt.Errorf("%w: account %s not in keystore: %v", ErrTransactionRejected, address.Hex(), err)
	}
	if err := store.Unlock(account, passphrase); err != nil {
		return nil, fmt.Errorf("%w: unlock %s: %v", ErrTransactionRejected, address.Hex(), err)
	}
	return &KeystoreSigner{store: store, account: account}, nil
}

func (s *KeystoreSigner) Address() common.Address { return s.account.Address }

func (s *KeystoreSigner) SignTx(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	signed, err := s.store.SignTx(s.account, tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}
	return signed, nil
}

// Writer builds, signs, submits, and confirms state-changing calls against
// the protocol contracts. Every method blocks until the transaction is
// mined: a hash alone is not success, only a successful receipt is.
type Writer struct {
	backend     TxBackend
	signer      Signer
	addresses   Addresses
	chainID     *big.Int
	confirmPoll time.Duration
}

// NewWriter wires a writer to the backend after pinning the chain ID.
func NewWriter(ctx context.Context, backend TxBackend, signer Signer, chainID uint64, addresses Addresses) (*Writer, error) {
	target := new(big.Int).SetUint64(chainID)
	remote, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrRemoteCallFailed, err)
	}
	if remote == nil || remote.Cmp(target) != 0 {
		return nil, fmt.Errorf("%w: node reports chain %s, target %s", ErrWrongNetwork, remote, target)
	}
	return &Writer{
		backend:     backend,
		signer:      signer,
		addresses:   addresses,
		chainID:     target,
		confirmPoll: time.Second,
	}, nil
}

// From returns the signing account address.
func (w *Writer) From() common.Address { return w.signer.Address() }

// DepositCollateral sends native collateral to the pool; the amount rides
// in the transaction value, the calldata carries no arguments.
func (w *Writer) DepositCollateral(ctx context.Context, amount *big.Int) (common.Hash, error) {
	data, err := lendingPoolABI.Pack("depositCollateral")
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: pack depositCollateral: %v", ErrRemoteCallFailed, err)
	}
	return w.submit(ctx, w.addresses.LendingPool, amount, data)
}

// WithdrawCollateral releases collateral to the recipient.
func (w *Writer) WithdrawCollateral(ctx context.Context, amount *big.Int, recipient common.Address) (common.Hash, error) {
	data, err := lendingPoolABI.Pack("withdrawCollateral", amount, recipient)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: pack withdrawCollateral: %v", ErrRemoteCallFailed, err)
	}
	return w.submit(ctx, w.addresses.LendingPool, nil, data)
}

// Borrow draws cNGN against the account's collateral.
func (w *Writer) Borrow(ctx context.Context, amount *big.Int, recipient common.Address) (common.Hash, error) {
	data, err := lendingPoolABI.Pack("borrow", amount, recipient)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: pack borrow: %v", ErrRemoteCallFailed, err)
	}
	return w.submit(ctx, w.addresses.LendingPool, nil, data)
}

// Repay pays down the borrower's cNGN debt.
func (w *Writer) Repay(ctx context.Context, borrower common.Address, amount *big.Int) (common.Hash, error) {
	data, err := lendingPoolABI.Pack("repay", borrower, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: pack repay: %v", ErrRemoteCallFailed, err)
	}
	return w.submit(ctx, w.addresses.LendingPool, nil, data)
}

// ApproveBorrowAsset grants the lending pool a cNGN spending allowance.
func (w *Writer) ApproveBorrowAsset(ctx context.Context, amount *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", w.addresses.LendingPool, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: pack approve: %v", ErrRemoteCallFailed, err)
	}
	return w.submit(ctx, w.addresses.BorrowAsset, nil, data)
}

func (w *Writer) submit(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	from := w.signer.Address()
	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: nonce: %v", ErrRemoteCallFailed, err)
	}
	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: gas tip: %v", ErrRemoteCallFailed, err)
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: head: %v", ErrRemoteCallFailed, err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	call := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data, GasTipCap: tip, GasFeeCap: feeCap}
	gas, err := w.backend.EstimateGas(ctx, call)
	if err != nil {
		// Estimation executes the call; a failure here is the contract
		// refusing the action, surfaced verbatim.
		return common.Hash{}, fmt.Errorf("%w: %v", ErrTransactionReverted, err)
	}
	gas += gas / 5

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := w.signer.SignTx(tx, w.chainID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: send: %v", ErrRemoteCallFailed, err)
	}
	if err := w.waitMined(ctx, signed.Hash()); err != nil {
		return signed.Hash(), err
	}
	return signed.Hash(), nil
}

// waitMined polls for the receipt until the transaction is mined or the
// context expires. Broadcast alone never counts as success.
func (w *Writer) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(w.confirmPoll)
	defer ticker.Stop()
	for {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: tx %s", ErrTransactionReverted, hash.Hex())
			}
			return nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("%w: receipt %s: %v", ErrRemoteCallFailed, hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: confirmation wait: %v", ErrRemoteCallFailed, ctx.Err())
		case <-ticker.C:
		}
	}
}
