package store

import (
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// Memory is an in-memory DB for dev mode and unit tests. InTx snapshots the
// whole state and restores it when the closure fails, matching the
// all-or-nothing behavior of the Postgres implementation.
type Memory struct {
	mu sync.Mutex
	s  memState
}

type memState struct {
	config       *vesting.ProgramConfig
	configRecord []byte

	schedules map[uint64]vesting.Schedule
	records   map[uint64][]byte
	addrIndex map[solana.PublicKey]uint64

	accounts map[solana.PublicKey]Account

	events []vesting.Event
}

func NewMemory() *Memory {
	return &Memory{s: memState{
		schedules: map[uint64]vesting.Schedule{},
		records:   map[uint64][]byte{},
		addrIndex: map[solana.PublicKey]uint64{},
		accounts:  map[solana.PublicKey]Account{},
	}}
}

func (s *memState) clone() memState {
	out := memState{
		config:       cloneConfig(s.config),
		configRecord: s.configRecord,
		schedules:    make(map[uint64]vesting.Schedule, len(s.schedules)),
		records:      make(map[uint64][]byte, len(s.records)),
		addrIndex:    make(map[solana.PublicKey]uint64, len(s.addrIndex)),
		accounts:     make(map[solana.PublicKey]Account, len(s.accounts)),
		events:       append([]vesting.Event(nil), s.events...),
	}
	for k, v := range s.schedules {
		out.schedules[k] = v
	}
	for k, v := range s.records {
		out.records[k] = v
	}
	for k, v := range s.addrIndex {
		out.addrIndex[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	return out
}

func cloneConfig(c *vesting.ProgramConfig) *vesting.ProgramConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.PendingCollector != nil {
		pk := *c.PendingCollector
		out.PendingCollector = &pk
	}
	if c.PendingCollectorDeadline != nil {
		d := *c.PendingCollectorDeadline
		out.PendingCollectorDeadline = &d
	}
	return &out
}

// Events returns a copy of the audit log, oldest first. Test helper.
func (m *Memory) Events() []vesting.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vesting.Event(nil), m.s.events...)
}

func (m *Memory) InTx(ctx context.Context, fn func(tx DB) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.s.clone()
	if err := fn(&memTx{s: &m.s}); err != nil {
		m.s = snap
		return err
	}
	return nil
}

func (m *Memory) GetConfig(ctx context.Context) (*vesting.ProgramConfig, error) {
	return inLock(m, func(tx *memTx) (*vesting.ProgramConfig, error) { return tx.GetConfig(ctx) })
}

func (m *Memory) InitConfig(ctx context.Context, cfg *vesting.ProgramConfig, record []byte) error {
	return inLockErr(m, func(tx *memTx) error { return tx.InitConfig(ctx, cfg, record) })
}

func (m *Memory) SaveConfig(ctx context.Context, cfg *vesting.ProgramConfig, record []byte) error {
	return inLockErr(m, func(tx *memTx) error { return tx.SaveConfig(ctx, cfg, record) })
}

func (m *Memory) InsertSchedule(ctx context.Context, s *vesting.Schedule, address solana.PublicKey, record []byte) error {
	return inLockErr(m, func(tx *memTx) error { return tx.InsertSchedule(ctx, s, address, record) })
}

func (m *Memory) GetSchedule(ctx context.Context, id uint64) (*vesting.Schedule, error) {
	return inLock(m, func(tx *memTx) (*vesting.Schedule, error) { return tx.GetSchedule(ctx, id) })
}

func (m *Memory) GetScheduleByAddress(ctx context.Context, address solana.PublicKey) (*vesting.Schedule, error) {
	return inLock(m, func(tx *memTx) (*vesting.Schedule, error) { return tx.GetScheduleByAddress(ctx, address) })
}

func (m *Memory) GetScheduleRecord(ctx context.Context, id uint64) ([]byte, error) {
	return inLock(m, func(tx *memTx) ([]byte, error) { return tx.GetScheduleRecord(ctx, id) })
}

func (m *Memory) AmountReleased(ctx context.Context, id uint64) (uint64, error) {
	return inLock(m, func(tx *memTx) (uint64, error) { return tx.AmountReleased(ctx, id) })
}

func (m *Memory) UpdateAmountReleased(ctx context.Context, id uint64, from, to uint64, record []byte) error {
	return inLockErr(m, func(tx *memTx) error { return tx.UpdateAmountReleased(ctx, id, from, to, record) })
}

func (m *Memory) DeleteSchedule(ctx context.Context, id uint64) error {
	return inLockErr(m, func(tx *memTx) error { return tx.DeleteSchedule(ctx, id) })
}

func (m *Memory) ListUnsettled(ctx context.Context, limit int) ([]vesting.Schedule, error) {
	return inLock(m, func(tx *memTx) ([]vesting.Schedule, error) { return tx.ListUnsettled(ctx, limit) })
}

func (m *Memory) AppendEvent(ctx context.Context, ev vesting.Event) error {
	return inLockErr(m, func(tx *memTx) error { return tx.AppendEvent(ctx, ev) })
}

func (m *Memory) CreateAccount(ctx context.Context, address, mint, owner solana.PublicKey) error {
	return inLockErr(m, func(tx *memTx) error { return tx.CreateAccount(ctx, address, mint, owner) })
}

func (m *Memory) Deposit(ctx context.Context, address solana.PublicKey, amount uint64) error {
	return inLockErr(m, func(tx *memTx) error { return tx.Deposit(ctx, address, amount) })
}

func (m *Memory) ReadAccount(ctx context.Context, address solana.PublicKey) (Account, error) {
	return inLock(m, func(tx *memTx) (Account, error) { return tx.ReadAccount(ctx, address) })
}

func (m *Memory) Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error {
	return inLockErr(m, func(tx *memTx) error { return tx.Transfer(ctx, from, to, authority, amount) })
}

func (m *Memory) CloseAccount(ctx context.Context, address solana.PublicKey) error {
	return inLockErr(m, func(tx *memTx) error { return tx.CloseAccount(ctx, address) })
}

func inLock[T any](m *Memory, fn func(tx *memTx) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{s: &m.s})
}

func inLockErr(m *Memory, fn func(tx *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{s: &m.s})
}

// memTx operates on the state directly; the owning Memory holds the lock for
// the duration of the transaction.
type memTx struct {
	s *memState
}

func (t *memTx) InTx(ctx context.Context, fn func(tx DB) error) error {
	return fn(t)
}

func (t *memTx) GetConfig(ctx context.Context) (*vesting.ProgramConfig, error) {
	if t.s.config == nil {
		return nil, vesting.ErrConfigNotInitialized
	}
	return cloneConfig(t.s.config), nil
}

func (t *memTx) InitConfig(ctx context.Context, cfg *vesting.ProgramConfig, record []byte) error {
	if t.s.config != nil {
		return vesting.ErrAlreadyInitialized
	}
	t.s.config = cloneConfig(cfg)
	t.s.configRecord = record
	return nil
}

func (t *memTx) SaveConfig(ctx context.Context, cfg *vesting.ProgramConfig, record []byte) error {
	if t.s.config == nil {
		return vesting.ErrConfigNotInitialized
	}
	t.s.config = cloneConfig(cfg)
	t.s.configRecord = record
	return nil
}

func (t *memTx) InsertSchedule(ctx context.Context, s *vesting.Schedule, address solana.PublicKey, record []byte) error {
	if _, ok := t.s.schedules[s.ScheduleID]; ok {
		return vesting.ErrScheduleIDConflict
	}
	t.s.schedules[s.ScheduleID] = *s
	t.s.records[s.ScheduleID] = record
	t.s.addrIndex[address] = s.ScheduleID
	return nil
}

func (t *memTx) GetSchedule(ctx context.Context, id uint64) (*vesting.Schedule, error) {
	s, ok := t.s.schedules[id]
	if !ok {
		return nil, vesting.ErrScheduleNotFound
	}
	return &s, nil
}

func (t *memTx) GetScheduleByAddress(ctx context.Context, address solana.PublicKey) (*vesting.Schedule, error) {
	id, ok := t.s.addrIndex[address]
	if !ok {
		return nil, vesting.ErrScheduleNotFound
	}
	return t.GetSchedule(ctx, id)
}

func (t *memTx) GetScheduleRecord(ctx context.Context, id uint64) ([]byte, error) {
	rec, ok := t.s.records[id]
	if !ok {
		return nil, vesting.ErrScheduleNotFound
	}
	return rec, nil
}

func (t *memTx) AmountReleased(ctx context.Context, id uint64) (uint64, error) {
	s, ok := t.s.schedules[id]
	if !ok {
		return 0, vesting.ErrScheduleNotFound
	}
	return s.AmountReleased, nil
}

func (t *memTx) UpdateAmountReleased(ctx context.Context, id uint64, from, to uint64, record []byte) error {
	s, ok := t.s.schedules[id]
	if !ok {
		return vesting.ErrScheduleNotFound
	}
	if s.AmountReleased != from {
		return ErrStale
	}
	s.AmountReleased = to
	t.s.schedules[id] = s
	t.s.records[id] = record
	return nil
}

func (t *memTx) DeleteSchedule(ctx context.Context, id uint64) error {
	if _, ok := t.s.schedules[id]; !ok {
		return vesting.ErrScheduleNotFound
	}
	delete(t.s.schedules, id)
	delete(t.s.records, id)
	for addr, sid := range t.s.addrIndex {
		if sid == id {
			delete(t.s.addrIndex, addr)
		}
	}
	return nil
}

func (t *memTx) ListUnsettled(ctx context.Context, limit int) ([]vesting.Schedule, error) {
	out := make([]vesting.Schedule, 0, limit)
	for _, s := range t.s.schedules {
		if s.Initialized && s.AmountReleased < s.TotalAmount {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduleID < out[j].ScheduleID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) AppendEvent(ctx context.Context, ev vesting.Event) error {
	t.s.events = append(t.s.events, ev)
	return nil
}

func (t *memTx) CreateAccount(ctx context.Context, address, mint, owner solana.PublicKey) error {
	if _, ok := t.s.accounts[address]; ok {
		return vesting.ErrAccountExists
	}
	t.s.accounts[address] = Account{Address: address, Mint: mint, Owner: owner}
	return nil
}

func (t *memTx) Deposit(ctx context.Context, address solana.PublicKey, amount uint64) error {
	acc, ok := t.s.accounts[address]
	if !ok {
		return vesting.ErrAccountNotFound
	}
	next, err := vesting.CheckedAdd(acc.Balance, amount)
	if err != nil {
		return err
	}
	acc.Balance = next
	t.s.accounts[address] = acc
	return nil
}

func (t *memTx) ReadAccount(ctx context.Context, address solana.PublicKey) (Account, error) {
	acc, ok := t.s.accounts[address]
	if !ok {
		return Account{}, vesting.ErrAccountNotFound
	}
	return acc, nil
}

func (t *memTx) Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error {
	src, ok := t.s.accounts[from]
	if !ok {
		return vesting.ErrAccountNotFound
	}
	dst, ok := t.s.accounts[to]
	if !ok {
		return vesting.ErrAccountNotFound
	}
	if !src.Owner.Equals(authority) {
		return vesting.ErrUnauthorized
	}
	if !src.Mint.Equals(dst.Mint) {
		return vesting.ErrMintMismatch
	}
	if src.Balance < amount {
		return vesting.ErrInsufficientFunds
	}
	next, err := vesting.CheckedAdd(dst.Balance, amount)
	if err != nil {
		return err
	}
	src.Balance -= amount
	dst.Balance = next
	t.s.accounts[from] = src
	t.s.accounts[to] = dst
	return nil
}

func (t *memTx) CloseAccount(ctx context.Context, address solana.PublicKey) error {
	acc, ok := t.s.accounts[address]
	if !ok {
		return vesting.ErrAccountNotFound
	}
	if acc.Balance != 0 {
		return vesting.ErrVaultNotEmpty
	}
	delete(t.s.accounts, address)
	return nil
}
