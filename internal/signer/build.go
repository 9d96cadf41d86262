package signer

import (
	"context"
	"fmt"
	"strconv"

	kms "cloud.google.com/go/kms/apiv1"

	"github.com/tos-network/op-succinct-go/internal/config"
)

// Build resolves Config's three-way signer selection (spec §6) into a
// concrete Signer, mirroring the original's Signer::from_env match arms.
func Build(ctx context.Context, cfg *config.Config) (Signer, error) {
	switch cfg.SignerKind {
	case config.SignerLocal:
		if cfg.Mnemonic != "" {
			return NewMnemonicSigner(cfg.Mnemonic, "")
		}
		return NewLocalSigner(cfg.PrivateKeyHex)
	case config.SignerWeb3:
		return NewWeb3Signer(cfg.SignerURL, cfg.SignerAddress, nil), nil
	case config.SignerCloudHSM:
		return buildHSMSigner(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown signer kind %d", cfg.SignerKind)
	}
}

func buildHSMSigner(ctx context.Context, cfg *config.Config) (Signer, error) {
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create KMS client: %w", err)
	}
	version := cfg.HSMKeyVersion
	if version == "" {
		version = "1"
	}
	if _, err := strconv.Atoi(version); err != nil {
		return nil, fmt.Errorf("HSM_KEY_VERSION must be numeric: %w", err)
	}
	resource := fmt.Sprintf("projects/%s/locations/%s/keyRings/%s/cryptoKeys/%s/cryptoKeyVersions/%s",
		cfg.GoogleProjectID, cfg.GoogleLocation, cfg.GoogleKeyring, cfg.HSMKeyName, version)
	return NewHSMSigner(ctx, client, resource)
}
