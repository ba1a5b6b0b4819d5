// Package codec encodes the program's records in their fixed wire layout:
// an 8-byte account discriminator followed by borsh-serialized fields
// (little-endian fixed-width integers, 1-byte enum variants, 1-byte-tagged
// options). The layout is the output contract for off-chain consumers and is
// also what the store persists as each schedule's record blob.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"

	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

var (
	scheduleDiscriminator = discriminator("VestingSchedule")
	configDiscriminator   = discriminator("ProgramConfig")

	ErrBadDiscriminator = errors.New("record discriminator mismatch")
	ErrShortRecord      = errors.New("record too short")
)

// discriminator derives the 8-byte account tag from the record name,
// following the sha256("account:<Name>") convention of the source chain
// ecosystem.
func discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// scheduleRecord mirrors the schedule's wire layout field for field. Field
// order is the schema; do not reorder.
type scheduleRecord struct {
	ScheduleID       uint64
	Mint             solana.PublicKey
	TokenVault       solana.PublicKey
	Depositor        solana.PublicKey
	TotalAmount      uint64
	CliffTime        int64
	VestingStartTime int64
	VestingEndTime   int64
	AmountReleased   uint64
	SourceCategory   uint8
	Initialized      bool
	Bump             uint8
}

// EncodeSchedule serializes a schedule into its fixed-layout record.
func EncodeSchedule(s *vesting.Schedule) ([]byte, error) {
	body, err := borsh.Serialize(scheduleRecord{
		ScheduleID:       s.ScheduleID,
		Mint:             s.Mint,
		TokenVault:       s.TokenVault,
		Depositor:        s.Depositor,
		TotalAmount:      s.TotalAmount,
		CliffTime:        s.CliffTime,
		VestingStartTime: s.VestingStartTime,
		VestingEndTime:   s.VestingEndTime,
		AmountReleased:   s.AmountReleased,
		SourceCategory:   uint8(s.SourceCategory),
		Initialized:      s.Initialized,
		Bump:             s.Bump,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schedule record: %w", err)
	}
	return append(scheduleDiscriminator[:], body...), nil
}

// DecodeSchedule parses a fixed-layout record back into a schedule.
func DecodeSchedule(data []byte) (*vesting.Schedule, error) {
	if len(data) < len(scheduleDiscriminator) {
		return nil, ErrShortRecord
	}
	if !bytes.Equal(data[:8], scheduleDiscriminator[:]) {
		return nil, ErrBadDiscriminator
	}
	var rec scheduleRecord
	if err := borsh.Deserialize(&rec, data[8:]); err != nil {
		return nil, fmt.Errorf("failed to deserialize schedule record: %w", err)
	}
	return &vesting.Schedule{
		ScheduleID:       rec.ScheduleID,
		Mint:             rec.Mint,
		TokenVault:       rec.TokenVault,
		Depositor:        rec.Depositor,
		TotalAmount:      rec.TotalAmount,
		CliffTime:        rec.CliffTime,
		VestingStartTime: rec.VestingStartTime,
		VestingEndTime:   rec.VestingEndTime,
		AmountReleased:   rec.AmountReleased,
		SourceCategory:   vesting.SourceCategory(rec.SourceCategory),
		Initialized:      rec.Initialized,
		Bump:             rec.Bump,
	}, nil
}

// EncodeConfig serializes the program config. The two optional fields use
// the 1-byte-tag option layout (0 = none, 1 = some followed by the payload),
// which borsh-go does not model, so the config is written out explicitly.
func EncodeConfig(c *vesting.ProgramConfig) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(configDiscriminator[:])
	buf.Write(c.Admin[:])
	buf.Write(c.DistributionCollector[:])
	if c.PendingCollector != nil {
		buf.WriteByte(1)
		buf.Write(c.PendingCollector[:])
	} else {
		buf.WriteByte(0)
	}
	if c.PendingCollectorDeadline != nil {
		buf.WriteByte(1)
		var d [8]byte
		binary.LittleEndian.PutUint64(d[:], uint64(*c.PendingCollectorDeadline))
		buf.Write(d[:])
	} else {
		buf.WriteByte(0)
	}
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], c.TotalSchedules)
	buf.Write(n[:])
	buf.WriteByte(c.Bump)
	return buf.Bytes(), nil
}

// DecodeConfig parses a program config record.
func DecodeConfig(data []byte) (*vesting.ProgramConfig, error) {
	r := bytes.NewReader(data)

	var disc [8]byte
	if _, err := r.Read(disc[:]); err != nil {
		return nil, ErrShortRecord
	}
	if disc != configDiscriminator {
		return nil, ErrBadDiscriminator
	}

	c := &vesting.ProgramConfig{}
	if err := readPubkey(r, &c.Admin); err != nil {
		return nil, err
	}
	if err := readPubkey(r, &c.DistributionCollector); err != nil {
		return nil, err
	}

	tag, err := r.ReadByte()
	if err != nil {
		return nil, ErrShortRecord
	}
	if tag == 1 {
		var pk solana.PublicKey
		if err := readPubkey(r, &pk); err != nil {
			return nil, err
		}
		c.PendingCollector = &pk
	}

	tag, err = r.ReadByte()
	if err != nil {
		return nil, ErrShortRecord
	}
	if tag == 1 {
		var d int64
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return nil, ErrShortRecord
		}
		c.PendingCollectorDeadline = &d
	}

	if err := binary.Read(r, binary.LittleEndian, &c.TotalSchedules); err != nil {
		return nil, ErrShortRecord
	}
	bump, err := r.ReadByte()
	if err != nil {
		return nil, ErrShortRecord
	}
	c.Bump = bump
	return c, nil
}

func readPubkey(r *bytes.Reader, pk *solana.PublicKey) error {
	if n, err := r.Read(pk[:]); err != nil || n != len(pk) {
		return ErrShortRecord
	}
	return nil
}
