package formula

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/store"
)

func setupCacheDB(t *testing.T) (*gorm.DB, store.Adapter) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	return db, store.New(db)
}

func TestCanonicalizeIsKeyOrderStable(t *testing.T) {
	a := Canonicalize(map[string]string{"b": "2", "a": "1"})
	b := Canonicalize(map[string]string{"a": "1", "b": "2"})
	require.Equal(t, a, b)
	require.Equal(t, "{}", Canonicalize(nil))
}

func TestComputeRangeCachedPersistsOnFirstCallAndReusesOnSecond(t *testing.T) {
	db, adapter := setupCacheDB(t)
	ctx := context.Background()

	composed, err := ComposeKey("key")
	require.NoError(t, err)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 0, Value: []byte(`"a"`)}).Error)

	cache := NewCache(db, adapter)
	registry := itemFormulaRegistry()

	in := RangeCacheInput{
		Type:          TypeContract,
		Name:          "item",
		TargetAddress: "c1",
		Store:         adapter,
		Registry:      registry,
		OnFetch:       func(int) {},
		BlockStart:    chain.Block{Height: 0},
		BlockEnd:      chain.Block{Height: 100},
	}

	first, err := cache.ComputeRangeCached(ctx, in)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, "a", first[0].Value)

	var count int64
	require.NoError(t, db.Model(&store.Computation{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	second, err := cache.ComputeRangeCached(ctx, RangeCacheInput{
		Type:          TypeContract,
		Name:          "item",
		TargetAddress: "c1",
		Store:         adapter,
		Registry:      registry,
		OnFetch:       func(int) {},
		BlockStart:    chain.Block{Height: 0},
		BlockEnd:      chain.Block{Height: 200},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, uint64(200), second[0].LatestBlockHeightValid)

	// Validity extension happens in place: still exactly one stored row.
	require.NoError(t, db.Model(&store.Computation{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestUpdateValidityUpToBlockHeightRefusesWhenDependencyChanged(t *testing.T) {
	db, adapter := setupCacheDB(t)
	ctx := context.Background()
	cache := NewCache(db, adapter)

	comp := &store.Computation{
		ID:                     "comp-1",
		TargetAddress:          "c1",
		FormulaType:            string(TypeContract),
		FormulaName:            "item",
		Args:                   "{}",
		BlockHeight:            0,
		LatestBlockHeightValid: 10,
		Dependencies: []store.ComputationDependency{
			{DependentKey: DependentKey(NamespaceWasmState, "c1", "items/a"), Prefix: false},
		},
	}
	require.NoError(t, db.Create(comp).Error)

	require.NoError(t, db.Create(&store.WasmStateEvent{
		ContractAddress: "c1", Key: []byte("items/a"), BlockHeight: 15, Value: []byte(`"changed"`),
	}).Error)

	extended, err := cache.UpdateValidityUpToBlockHeight(ctx, comp, 20)
	require.NoError(t, err)
	require.False(t, extended)
}

func feegrantFormulaRegistry() *Registry {
	r := NewRegistry()
	r.Register(Registration{
		Type: TypeAccount,
		Name: "feegrantsGranted",
		Compute: func(env *Env) (any, error) {
			return env.GetFeegrantAllowances(env.TargetAddress, true)
		},
	})
	return r
}

// TestComputeRangeCachedInvalidatesOnWildcardSubjectDependency exercises the
// compound-subject dependent-key convention end to end (feegrantKey's
// granter|grantee subject with the "*" sentinel): a cached range must stop
// extending its validity once a new event lands under that key, matching
// the exact-subject coverage in
// TestUpdateValidityUpToBlockHeightRefusesWhenDependencyChanged above.
func TestComputeRangeCachedInvalidatesOnWildcardSubjectDependency(t *testing.T) {
	db, adapter := setupCacheDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&store.FeegrantAllowance{
		Granter: "alice", Grantee: "bob", BlockHeight: 0, Allowance: []byte(`{"limit":"10"}`),
	}).Error)

	cache := NewCache(db, adapter)
	registry := feegrantFormulaRegistry()

	in := RangeCacheInput{
		Type:          TypeAccount,
		Name:          "feegrantsGranted",
		TargetAddress: "alice",
		Store:         adapter,
		Registry:      registry,
		OnFetch:       func(int) {},
		BlockStart:    chain.Block{Height: 0},
		BlockEnd:      chain.Block{Height: 40},
	}

	first, err := cache.ComputeRangeCached(ctx, in)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A new allowance granted by alice lands inside the extension window.
	require.NoError(t, db.Create(&store.FeegrantAllowance{
		Granter: "alice", Grantee: "carol", BlockHeight: 50, Allowance: []byte(`{"limit":"5"}`),
	}).Error)

	var comp store.Computation
	require.NoError(t, db.Preload("Dependencies").Where("target_address = ? AND formula_name = ?", "alice", "feegrantsGranted").First(&comp).Error)

	extended, err := cache.UpdateValidityUpToBlockHeight(ctx, &comp, 100)
	require.NoError(t, err)
	require.False(t, extended, "new feegrant event for the same granter must invalidate the cached range")
}

func TestUpdateValidityUpToBlockHeightExtendsWhenClean(t *testing.T) {
	db, adapter := setupCacheDB(t)
	ctx := context.Background()
	cache := NewCache(db, adapter)

	comp := &store.Computation{
		ID:                     "comp-2",
		TargetAddress:          "c1",
		FormulaType:            string(TypeContract),
		FormulaName:            "item",
		Args:                   "{}",
		BlockHeight:            0,
		LatestBlockHeightValid: 10,
		Dependencies: []store.ComputationDependency{
			{DependentKey: DependentKey(NamespaceWasmState, "c1", "items/a"), Prefix: false},
		},
	}
	require.NoError(t, db.Create(comp).Error)

	extended, err := cache.UpdateValidityUpToBlockHeight(ctx, comp, 50)
	require.NoError(t, err)
	require.True(t, extended)
	require.Equal(t, uint64(50), comp.LatestBlockHeightValid)
}
