// =============================
// File: internal/program/delegation_ops.go
// =============================
package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/runtime"
)

// delegate_authority: [delegated_authority w, user s w, platform_config,
// system_program, user_token_account w, swap_executor, token_program]
func (p *Program) delegateAuthority(ic *runtime.InvokeContext, accounts []*solana.AccountMeta, amount uint64) error {
	if err := requireAccounts(accounts, 7); err != nil {
		return err
	}
	recordKey := accounts[0].PublicKey
	user := accounts[1].PublicKey
	configKey := accounts[2].PublicKey
	tokenAccount := accounts[4].PublicKey
	executor := accounts[5].PublicKey
	tokenProgram := accounts[6].PublicKey

	if !ic.IsSigner(user) {
		return ErrUnauthorized
	}
	addr, bump, err := DeriveDelegatedAuthorityAddress(p.id, user)
	if err != nil {
		return err
	}
	if !recordKey.Equals(addr) {
		return ErrInvalidAccount
	}
	if !tokenProgram.Equals(solana.TokenProgramID) {
		return ErrInvalidAccount
	}

	cfg, err := p.loadPlatformConfig(ic, configKey)
	if err != nil {
		return err
	}
	if !executor.Equals(cfg.SwapExecutorAuthority) {
		return ErrUnauthorized
	}

	tokenAcc, err := loadTokenAccount(ic, tokenAccount)
	if err != nil {
		return wrapErr(ErrTokenOperationFailed, err)
	}
	if !tokenAcc.Owner.Equals(user) {
		return ErrUnauthorized
	}
	// пустой счёт получателя свапа можно делегировать на любую сумму:
	// через него executor забирает комиссию с выхода свапа
	if amount == 0 || (tokenAcc.Amount > 0 && amount > tokenAcc.Amount) {
		return ErrInvalidAmount
	}

	approve := token.NewApproveInstruction(amount, tokenAccount, cfg.SwapExecutorAuthority, user, nil).Build()
	if err := ic.Invoke(approve); err != nil {
		return wrapErr(ErrTokenOperationFailed, err)
	}

	record, err := p.loadDelegatedAuthority(ic, recordKey)
	if err != nil {
		return err
	}
	created := record == nil
	if created {
		record = &DelegatedAuthority{User: user, Bump: bump}
	}
	record.AllowedSwapAuthority = cfg.SwapExecutorAuthority
	record.IsActive = true

	data, err := record.MarshalBinary()
	if err != nil {
		return err
	}
	if created {
		err = ic.CreateAccount(recordKey, data, [][]byte{seedDelegate, user.Bytes(), {bump}})
	} else {
		err = p.storeRecord(ic, recordKey, data)
	}
	if err != nil {
		return err
	}

	ic.Log("Authority delegated: user=%s executor=%s amount=%d", user, cfg.SwapExecutorAuthority, amount)
	p.logger.Info("Authority delegated",
		zap.Stringer("user", user),
		zap.Stringer("token_account", tokenAccount),
		zap.Stringer("swap_executor", cfg.SwapExecutorAuthority),
		zap.Uint64("amount", amount),
		zap.Bool("new_record", created))
	return nil
}

// revoke_authority: [delegated_authority w, user s w, user_token_account w, token_program]
func (p *Program) revokeAuthority(ic *runtime.InvokeContext, accounts []*solana.AccountMeta) error {
	if err := requireAccounts(accounts, 4); err != nil {
		return err
	}
	recordKey := accounts[0].PublicKey
	user := accounts[1].PublicKey
	tokenAccount := accounts[2].PublicKey
	tokenProgram := accounts[3].PublicKey

	if !ic.IsSigner(user) {
		return ErrUnauthorized
	}
	addr, _, err := DeriveDelegatedAuthorityAddress(p.id, user)
	if err != nil {
		return err
	}
	if !recordKey.Equals(addr) {
		return ErrInvalidAccount
	}
	if !tokenProgram.Equals(solana.TokenProgramID) {
		return ErrInvalidAccount
	}

	record, err := p.loadDelegatedAuthority(ic, recordKey)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotFound
	}
	if !record.User.Equals(user) {
		return ErrUnauthorized
	}

	tokenAcc, err := loadTokenAccount(ic, tokenAccount)
	if err != nil {
		return wrapErr(ErrTokenOperationFailed, err)
	}
	if !tokenAcc.Owner.Equals(user) {
		return ErrUnauthorized
	}

	revoke := token.NewRevokeInstruction(tokenAccount, user, nil).Build()
	if err := ic.Invoke(revoke); err != nil {
		return wrapErr(ErrTokenOperationFailed, fmt.Errorf("revoke %s: %w", tokenAccount, err))
	}

	wasActive := record.IsActive
	record.IsActive = false
	data, err := record.MarshalBinary()
	if err != nil {
		return err
	}
	if err := p.storeRecord(ic, recordKey, data); err != nil {
		return err
	}

	ic.Log("Authority revoked: user=%s", user)
	p.logger.Info("Authority revoked",
		zap.Stringer("user", user),
		zap.Stringer("token_account", tokenAccount),
		zap.Bool("was_active", wasActive))
	return nil
}
