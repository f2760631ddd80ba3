package redeem

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
)

const (
	rivalUserID       = "rival-user"
	fixedClockUnixUTC = 1700000000
)

var errStoreFailure = errors.New("store error")

// memoryStore keeps everything in maps and restores a snapshot when a transaction fails.
type memoryStore struct {
	codes        map[string]Code
	records      []Record
	inventory    map[string]int64
	definitions  map[string]AchievementDefinition
	achievements map[string]int64
	balances     map[string]ledger.Balance
	transactions []ledger.Transaction
	nextID       int

	loseClaims        int
	onClaim           func(store *memoryStore)
	claimError        error
	insertRecordError error
	incrementError    error
	applyDeltaError   error
	claimCalls        int
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{
		codes:        map[string]Code{},
		inventory:    map[string]int64{},
		definitions:  map[string]AchievementDefinition{},
		achievements: map[string]int64{},
		balances:     map[string]ledger.Balance{},
	}
}

type memorySnapshot struct {
	codes            map[string]Code
	recordCount      int
	inventory        map[string]int64
	achievements     map[string]int64
	balances         map[string]ledger.Balance
	transactionCount int
}

func (store *memoryStore) snapshot() memorySnapshot {
	return memorySnapshot{
		codes:            copyMap(store.codes),
		recordCount:      len(store.records),
		inventory:        copyMap(store.inventory),
		achievements:     copyMap(store.achievements),
		balances:         copyMap(store.balances),
		transactionCount: len(store.transactions),
	}
}

func (store *memoryStore) restore(saved memorySnapshot) {
	store.codes = saved.codes
	store.records = store.records[:saved.recordCount]
	store.inventory = saved.inventory
	store.achievements = saved.achievements
	store.balances = saved.balances
	store.transactions = store.transactions[:saved.transactionCount]
}

func copyMap[K comparable, V any](source map[K]V) map[K]V {
	copied := make(map[K]V, len(source))
	for key, value := range source {
		copied[key] = value
	}
	return copied
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	saved := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(saved)
		return err
	}
	return nil
}

func (store *memoryStore) Ledger() ledger.Store {
	return memoryLedger{store: store}
}

func (store *memoryStore) newID(prefix string) string {
	store.nextID++
	return prefix + "-" + strconv.Itoa(store.nextID)
}

func (store *memoryStore) CreateCode(_ context.Context, draft CodeDraft, createdAt time.Time) (Code, error) {
	for _, existing := range store.codes {
		if existing.Code == draft.Code {
			return Code{}, ErrCodeExists
		}
	}
	code := Code{
		ID:          store.newID("code"),
		Code:        draft.Code,
		Reward:      draft.Reward,
		Status:      CodeStatusActive,
		Description: draft.Description,
		Hint:        draft.Hint,
		ExpiresAt:   draft.ExpiresAt,
		CreatedAt:   createdAt,
	}
	store.codes[code.ID] = code
	return code, nil
}

func (store *memoryStore) GetCode(_ context.Context, value string) (Code, error) {
	for _, code := range store.codes {
		if code.Code == value {
			return code, nil
		}
	}
	return Code{}, ErrCodeNotFound
}

func (store *memoryStore) ListClaimableCodes(_ context.Context, at time.Time) ([]Code, error) {
	var claimable []Code
	for _, code := range store.codes {
		if code.Status == CodeStatusActive && code.ClaimedBy == "" && !code.PastExpiry(at) {
			claimable = append(claimable, code)
		}
	}
	sort.Slice(claimable, func(left, right int) bool { return claimable[left].Code < claimable[right].Code })
	return claimable, nil
}

func (store *memoryStore) CountClaimableCodes(ctx context.Context, at time.Time) (int64, error) {
	claimable, err := store.ListClaimableCodes(ctx, at)
	return int64(len(claimable)), err
}

func (store *memoryStore) ClaimCode(_ context.Context, codeID string, userID ledger.UserID, at time.Time) (bool, error) {
	store.claimCalls++
	if store.claimError != nil {
		return false, store.claimError
	}
	code, exists := store.codes[codeID]
	if !exists || code.Status != CodeStatusActive || code.ClaimedBy != "" {
		return false, nil
	}
	claimant := userID.String()
	if store.loseClaims > 0 {
		store.loseClaims--
		claimant = rivalUserID
	}
	code.Status = CodeStatusClaimed
	code.ClaimedBy = claimant
	code.ClaimedAt = &at
	store.codes[codeID] = code
	if store.onClaim != nil {
		store.onClaim(store)
	}
	return claimant == userID.String(), nil
}

func (store *memoryStore) DisableCode(_ context.Context, codeID string) (bool, error) {
	code, exists := store.codes[codeID]
	if !exists || code.Status == CodeStatusClaimed {
		return false, nil
	}
	code.Status = CodeStatusDisabled
	store.codes[codeID] = code
	return true, nil
}

func (store *memoryStore) ExpireCodes(_ context.Context, at time.Time) (int64, error) {
	var expired int64
	for codeID, code := range store.codes {
		if code.Status == CodeStatusActive && code.PastExpiry(at) {
			code.Status = CodeStatusExpired
			store.codes[codeID] = code
			expired++
		}
	}
	return expired, nil
}

func (store *memoryStore) CountCodesByStatus(_ context.Context) (map[CodeStatus]int64, error) {
	counts := map[CodeStatus]int64{}
	for _, code := range store.codes {
		counts[code.Status]++
	}
	return counts, nil
}

func (store *memoryStore) FindRecord(_ context.Context, codeID string, userID ledger.UserID) (Record, bool, error) {
	for _, record := range store.records {
		if record.CodeID == codeID && record.UserID == userID.String() {
			return record, true, nil
		}
	}
	return Record{}, false, nil
}

func (store *memoryStore) InsertRecord(ctx context.Context, record Record) (Record, error) {
	if store.insertRecordError != nil {
		return Record{}, store.insertRecordError
	}
	userID, _ := ledger.NewUserID(record.UserID)
	if _, found, _ := store.FindRecord(ctx, record.CodeID, userID); found {
		return Record{}, ErrDuplicateRecord
	}
	record.ID = store.newID("record")
	store.records = append(store.records, record)
	return record, nil
}

func (store *memoryStore) ListRecords(_ context.Context, userID ledger.UserID, limit int, offset int) ([]Record, error) {
	var matched []Record
	for index := len(store.records) - 1; index >= 0; index-- {
		if store.records[index].UserID == userID.String() {
			matched = append(matched, store.records[index])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *memoryStore) IncrementInventory(_ context.Context, userID ledger.UserID, itemType string, amount int64) error {
	if store.incrementError != nil {
		return store.incrementError
	}
	store.inventory[userID.String()+"|"+itemType] += amount
	return nil
}

func (store *memoryStore) ListInventory(_ context.Context, userID ledger.UserID) ([]InventoryItem, error) {
	var items []InventoryItem
	prefix := userID.String() + "|"
	for key, quantity := range store.inventory {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			items = append(items, InventoryItem{ItemType: key[len(prefix):], Quantity: quantity})
		}
	}
	return items, nil
}

func (store *memoryStore) UpsertAchievementDefinition(_ context.Context, definition AchievementDefinition) error {
	store.definitions[definition.Key] = definition
	return nil
}

func (store *memoryStore) GetAchievementDefinition(_ context.Context, key string) (AchievementDefinition, bool, error) {
	definition, found := store.definitions[key]
	return definition, found, nil
}

func (store *memoryStore) UnlockAchievement(_ context.Context, userID ledger.UserID, definition AchievementDefinition, _ time.Time) error {
	store.achievements[userID.String()+"|"+definition.Key] = definition.TargetValue
	return nil
}

type memoryLedger struct {
	store *memoryStore
}

func (memory memoryLedger) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, memory)
}

func (memory memoryLedger) ApplyDelta(_ context.Context, userID ledger.UserID, delta ledger.Points) (ledger.Balance, error) {
	if memory.store.applyDeltaError != nil {
		return ledger.Balance{}, memory.store.applyDeltaError
	}
	balance := memory.store.balances[userID.String()]
	if balance.Balance+delta < 0 {
		return ledger.Balance{}, ledger.ErrInsufficientBalance
	}
	balance.Balance += delta
	if delta > 0 {
		balance.TotalEarned += delta
	} else {
		balance.TotalSpent -= delta
	}
	memory.store.balances[userID.String()] = balance
	return balance, nil
}

func (memory memoryLedger) InsertTransaction(_ context.Context, transaction ledger.Transaction) error {
	memory.store.transactions = append(memory.store.transactions, transaction)
	return nil
}

func (memory memoryLedger) GetBalance(_ context.Context, userID ledger.UserID) (ledger.Balance, error) {
	return memory.store.balances[userID.String()], nil
}

func (memory memoryLedger) ListTransactions(_ context.Context, _ ledger.UserID, _ int, _ int) ([]ledger.Transaction, error) {
	return memory.store.transactions, nil
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) last(test *testing.T) OperationLog {
	test.Helper()
	if len(logger.entries) == 0 {
		test.Fatalf("expected a log entry")
	}
	return logger.entries[len(logger.entries)-1]
}

type fixture struct {
	store   *memoryStore
	ledger  *ledger.Service
	issuer  *Issuer
	service *Service
	gacha   *Gacha
	logger  *recorderLogger
}

func newFixture(test *testing.T, options ...Option) fixture {
	test.Helper()
	store := newMemoryStore(test)
	logger := &recorderLogger{}
	options = append([]Option{WithOperationLogger(logger)}, options...)
	ledgerService, err := ledger.NewService(store.Ledger(), func() int64 { return fixedClockUnixUTC })
	if err != nil {
		test.Fatalf("ledger service: %v", err)
	}
	issuer, err := NewIssuer(store, ledgerService, fixedClock, options...)
	if err != nil {
		test.Fatalf("issuer: %v", err)
	}
	service, err := NewService(store, issuer, fixedClock, options...)
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	gacha, err := NewGacha(store, ledgerService, mustPositivePoints(test, defaultGachaCost), fixedClock, options...)
	if err != nil {
		test.Fatalf("gacha: %v", err)
	}
	return fixture{store: store, ledger: ledgerService, issuer: issuer, service: service, gacha: gacha, logger: logger}
}

func fixedClock() time.Time {
	return time.Unix(fixedClockUnixUTC, 0).UTC()
}

func (current fixture) mustCreateCode(test *testing.T, value string, reward Reward) Code {
	test.Helper()
	code, err := current.service.CreateCode(context.Background(), CodeDraft{Code: value, Reward: reward, Hint: "hint for " + value})
	if err != nil {
		test.Fatalf("create code %s: %v", value, err)
	}
	return code
}

func (current fixture) codeByValue(test *testing.T, value string) Code {
	test.Helper()
	code, err := current.store.GetCode(context.Background(), value)
	if err != nil {
		test.Fatalf("get code %s: %v", value, err)
	}
	return code
}

func (current fixture) balanceOf(userID ledger.UserID) ledger.Points {
	return current.store.balances[userID.String()].Balance
}

func mustUserID(test *testing.T, raw string) ledger.UserID {
	test.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustPositivePoints(test *testing.T, raw int64) ledger.PositivePoints {
	test.Helper()
	amount, err := ledger.NewPositivePoints(raw)
	if err != nil {
		test.Fatalf("positive points: %v", err)
	}
	return amount
}

func mustPointsReward(test *testing.T, amount int64) Reward {
	test.Helper()
	reward, err := NewPointsReward(amount)
	if err != nil {
		test.Fatalf("points reward: %v", err)
	}
	return reward
}

func mustItemReward(test *testing.T, itemType string, amount int64) Reward {
	test.Helper()
	reward, err := NewItemReward(itemType, amount)
	if err != nil {
		test.Fatalf("item reward: %v", err)
	}
	return reward
}

func mustBadgeReward(test *testing.T, key string, name string) Reward {
	test.Helper()
	reward, err := NewBadgeReward(key, name)
	if err != nil {
		test.Fatalf("badge reward: %v", err)
	}
	return reward
}
