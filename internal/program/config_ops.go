// =============================
// File: internal/program/config_ops.go
// =============================
package program

import (
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/runtime"
)

// initialize: [platform_config w, payer s w, system_program]
func (p *Program) initialize(ic *runtime.InvokeContext, accounts []*solana.AccountMeta, admin, executor, venue solana.PublicKey) error {
	if err := requireAccounts(accounts, 2); err != nil {
		return err
	}
	configKey, payer := accounts[0].PublicKey, accounts[1].PublicKey
	if !ic.IsSigner(payer) {
		return ErrUnauthorized
	}

	addr, bump, err := DerivePlatformConfigAddress(p.id)
	if err != nil {
		return err
	}
	if !configKey.Equals(addr) {
		return ErrInvalidAccount
	}
	if _, exists := ic.Account(configKey); exists {
		return ErrAlreadyInitialized
	}

	cfg := &PlatformConfig{
		AdminAuthority:        admin,
		SwapExecutorAuthority: executor,
		ExternalSwapProgramID: venue,
		Bump:                  bump,
	}
	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	if err := ic.CreateAccount(configKey, data, [][]byte{seedPlatformConfig, {bump}}); err != nil {
		return err
	}

	ic.Log("Platform initialized: admin=%s executor=%s venue=%s", admin, executor, venue)
	p.logger.Info("Platform config created",
		zap.Stringer("admin", admin),
		zap.Stringer("swap_executor", executor),
		zap.Stringer("swap_program", venue))
	return nil
}

// update_config: [platform_config w, admin s]
func (p *Program) updateConfig(ic *runtime.InvokeContext, accounts []*solana.AccountMeta, params UpdateConfigParams) error {
	if err := requireAccounts(accounts, 2); err != nil {
		return err
	}
	configKey, admin := accounts[0].PublicKey, accounts[1].PublicKey

	cfg, err := p.loadPlatformConfig(ic, configKey)
	if err != nil {
		return err
	}
	if !ic.IsSigner(admin) || !admin.Equals(cfg.AdminAuthority) {
		return ErrUnauthorized
	}

	if params.NewAdmin != nil {
		cfg.AdminAuthority = *params.NewAdmin
	}
	if params.NewSwapExecutor != nil {
		cfg.SwapExecutorAuthority = *params.NewSwapExecutor
	}
	if params.NewExternalSwapProgramID != nil {
		cfg.ExternalSwapProgramID = *params.NewExternalSwapProgramID
	}

	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	if err := p.storeRecord(ic, configKey, data); err != nil {
		return err
	}
	ic.Log("Platform config updated")
	p.logger.Info("Platform config updated",
		zap.Stringer("admin", cfg.AdminAuthority),
		zap.Stringer("swap_executor", cfg.SwapExecutorAuthority),
		zap.Stringer("swap_program", cfg.ExternalSwapProgramID))
	return nil
}
