package formula

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/store"
)

func setupEnvDB(t *testing.T) (*gorm.DB, store.Adapter) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	return db, store.New(db)
}

func newTestEnv(db *gorm.DB, adapter store.Adapter, block chain.Block) *Env {
	return New(context.Background(), NewConfig{
		TargetAddress: "c1",
		Block:         block,
		Store:         adapter,
		OnFetch:       func(int) {},
	})
}

func TestEnvGetDecodesJSONAndRecordsDependency(t *testing.T) {
	db, adapter := setupEnvDB(t)
	composed, err := ComposeKey("key")
	require.NoError(t, err)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 5, Value: []byte(`"hello"`)}).Error)

	env := newTestEnv(db, adapter, chain.Block{Height: 10})
	v, err := env.Get("c1", "key")
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	deps := env.Dependencies()
	require.Len(t, deps, 1)
	require.False(t, deps[0].Prefix)
}

func TestEnvGetMemoizesWithinOneEvaluation(t *testing.T) {
	db, adapter := setupEnvDB(t)
	composed, err := ComposeKey("key")
	require.NoError(t, err)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 5, Value: []byte(`"v1"`)}).Error)

	env := newTestEnv(db, adapter, chain.Block{Height: 10})
	first, err := env.Get("c1", "key")
	require.NoError(t, err)
	require.Equal(t, "v1", first)

	// A later write at a height still <= the target block must not be
	// observed by a second Get within the same evaluation: the memo wins.
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 6, Value: []byte(`"v2"`)}).Error)
	second, err := env.Get("c1", "key")
	require.NoError(t, err)
	require.Equal(t, "v1", second)
}

func TestEnvGetMapFiltersByPrefixAndDecodesKeys(t *testing.T) {
	db, adapter := setupEnvDB(t)
	env := newTestEnv(db, adapter, chain.Block{Height: 10})

	composedA, err := ComposeKey("items", "a")
	require.NoError(t, err)
	composedB, err := ComposeKey("items", "b")
	require.NoError(t, err)
	composedOther, err := ComposeKey("other", "c")
	require.NoError(t, err)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composedA, BlockHeight: 1, Value: []byte("1")}).Error)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composedB, BlockHeight: 1, Value: []byte("2")}).Error)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composedOther, BlockHeight: 1, Value: []byte("3")}).Error)

	m, err := env.GetMap("c1", "items", GetMapOptions{KeyType: KeyTypeString})
	require.NoError(t, err)
	require.Len(t, m, 2)
	require.Contains(t, m, "a")
	require.Contains(t, m, "b")
}

func TestEnvGetDateKeyFirstSetBypassesMemo(t *testing.T) {
	db, adapter := setupEnvDB(t)
	composed, err := ComposeKey("key")
	require.NoError(t, err)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 5, BlockTimeUnixMs: 5000, Value: []byte(`"v1"`)}).Error)

	env := newTestEnv(db, adapter, chain.Block{Height: 10})
	_, err = env.Get("c1", "key") // populate the point memo with the value at height 5
	require.NoError(t, err)

	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 2, BlockTimeUnixMs: 2000, Value: []byte(`"older"`)}).Error)

	firstSet, err := env.GetDateKeyFirstSet("c1", "key")
	require.NoError(t, err)
	require.NotNil(t, firstSet)
	require.Equal(t, time.UnixMilli(2000).UTC(), *firstSet)
}

func TestEnvGetContractFiltersByCodeID(t *testing.T) {
	db, adapter := setupEnvDB(t)
	require.NoError(t, db.Create(&store.Contract{Address: "c1", CodeID: 7}).Error)

	env := newTestEnv(db, adapter, chain.Block{Height: 10})
	env.codeIDCatalogue = map[string][]uint64{"allowed": {7, 8}, "other": {1}}

	matched, err := env.ContractMatchesCodeIdKeys("c1", []string{"allowed"})
	require.NoError(t, err)
	require.True(t, matched)

	matched, err = env.ContractMatchesCodeIdKeys("c1", []string{"other"})
	require.NoError(t, err)
	require.False(t, matched)
}

func TestEnvGetBalancePrefersSnapshotOverHistory(t *testing.T) {
	db, adapter := setupEnvDB(t)
	require.NoError(t, db.Create(&store.BankBalance{Address: "addr1", Balances: []byte(`{"uatom":"100"}`), BlockHeight: 1}).Error)

	env := newTestEnv(db, adapter, chain.Block{Height: 10})
	v, ok, err := env.GetBalance("addr1", "uatom")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "100", v)
}

func TestEnvGetBalanceFallsBackToHistoryForTrackedContract(t *testing.T) {
	db, adapter := setupEnvDB(t)
	require.NoError(t, db.Create(&store.Contract{Address: "c1", CodeID: 9}).Error)
	require.NoError(t, db.Create(&store.BankStateEvent{Address: "c1", Denom: "uatom", BlockHeight: 3, Balance: "42"}).Error)

	env := newTestEnv(db, adapter, chain.Block{Height: 10})
	env.bankHistoryCodeIDs = map[uint64]bool{9: true}

	v, ok, err := env.GetBalance("c1", "uatom")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", v)
}

func TestEnvGetBalanceNoFallbackForUntrackedContract(t *testing.T) {
	db, adapter := setupEnvDB(t)
	require.NoError(t, db.Create(&store.Contract{Address: "c1", CodeID: 9}).Error)
	require.NoError(t, db.Create(&store.BankStateEvent{Address: "c1", Denom: "uatom", BlockHeight: 3, Balance: "42"}).Error)

	env := newTestEnv(db, adapter, chain.Block{Height: 10})
	// bankHistoryCodeIDs left nil: code id 9 is not in the tracked set.
	_, ok, err := env.GetBalance("c1", "uatom")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnvFeegrantAllowanceActiveAndRevoked(t *testing.T) {
	db, adapter := setupEnvDB(t)
	require.NoError(t, db.Create(&store.FeegrantAllowance{Granter: "g1", Grantee: "e1", BlockHeight: 1, Allowance: []byte(`{"limit":"10"}`)}).Error)
	require.NoError(t, db.Create(&store.FeegrantAllowance{Granter: "g1", Grantee: "e2", BlockHeight: 1, Allowance: []byte(`{"limit":"5"}`), Revoked: true}).Error)

	env := newTestEnv(db, adapter, chain.Block{Height: 10})
	has, err := env.HasFeegrantAllowance("g1", "e1")
	require.NoError(t, err)
	require.True(t, has)

	has, err = env.HasFeegrantAllowance("g1", "e2")
	require.NoError(t, err)
	require.False(t, has)
}

func TestEnvDateUsesBlockTimeOrWallClock(t *testing.T) {
	_, adapter := setupEnvDB(t)
	block := chain.Block{Height: 10, TimeUnixMs: 1000}
	env := New(context.Background(), NewConfig{
		TargetAddress: "c1",
		Block:         block,
		UseBlockDate:  true,
		Store:         adapter,
		OnFetch:       func(int) {},
	})
	require.Equal(t, block.Time(), env.Date())

	wallNow := time.Unix(0, int64(5000)*int64(time.Millisecond)).UTC()
	env2 := New(context.Background(), NewConfig{
		TargetAddress: "c1",
		Block:         block,
		UseBlockDate:  false,
		Now:           wallNow,
		Store:         adapter,
		OnFetch:       func(int) {},
	})
	require.Equal(t, wallNow, env2.Date())
}
