// Package keys derives the program's deterministic identities. Schedules,
// vaults, and the config singleton are program-derived addresses: authorities
// with no private key, proven by recomputing the derivation rather than by a
// signature.
package keys

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// PDA seeds. These are part of the deployment's wire-level identity and must
// never change once schedules exist.
const (
	ConfigSeed   = "program_config"
	ScheduleSeed = "vesting_schedule"
	VaultSeed    = "vesting_vault"
)

func scheduleIDSeed(id uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, id)
	return b
}

// Config derives the program config address and bump.
func Config(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, programID)
}

// Schedule derives the address and bump of the schedule with the given id.
func Schedule(programID solana.PublicKey, id uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(ScheduleSeed), scheduleIDSeed(id)},
		programID,
	)
}

// Vault derives the address and bump of the vault belonging to the schedule
// with the given id.
func Vault(programID solana.PublicKey, id uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(VaultSeed), scheduleIDSeed(id)},
		programID,
	)
}

// ScheduleFromBump recomputes a schedule's address from its stored bump, the
// cheap path when the bump is already known.
func ScheduleFromBump(programID solana.PublicKey, id uint64, bump uint8) (solana.PublicKey, error) {
	addr, err := solana.CreateProgramAddress(
		[][]byte{[]byte(ScheduleSeed), scheduleIDSeed(id), {bump}},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to recompute schedule address: %w", err)
	}
	return addr, nil
}

// VerifySchedule recomputes the schedule address from the stored bump and
// compares it to the presented address. A mismatch means the presented
// account does not hold authority over the schedule's vault.
func VerifySchedule(programID solana.PublicKey, id uint64, bump uint8, presented solana.PublicKey) error {
	derived, err := ScheduleFromBump(programID, id, bump)
	if err != nil {
		return err
	}
	if !derived.Equals(presented) {
		return vesting.ErrVaultAuthorityMismatch
	}
	return nil
}
