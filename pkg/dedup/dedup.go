// Package dedup maintains the content-addressed price group index. A price
// group is identified per location by a digest of its EVSE id set, so that
// re-ingesting the same set resolves to the existing group.
package dedup

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/query"
	"github.com/Zerofisher/chargelog/pkg/store"
)

// HashLength is the number of hex characters kept from the digest.
const HashLength = 16

// evseSetDomainKey is the ASCII domain name zero-padded to 32 bytes. Changing it
// invalidates every stored hash.
var evseSetDomainKey = [32]byte{
	'c', 'h', 'a', 'r', 'g', 'e', 'l', 'o', 'g', '.', 'p', 'r', 'i', 'c', 'e', '-',
	'g', 'r', 'o', 'u', 'p', '.', 'e', 'v', 's', 'e', '-', 's', 'e', 't', 0, 0,
}

// encMode uses Core Deterministic Encoding: the same id set always produces the
// same bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dedup: CBOR encoder initialization failed: " + err.Error())
	}
}

// Canonical returns the deduplicated, lexicographically sorted id set.
func Canonical(evseIDs []string) []string {
	ids := slices.Clone(evseIDs)
	slices.Sort(ids)
	return slices.Compact(ids)
}

// ContentHash returns the fixed-length hex digest of an EVSE id set. Element
// order and repeated ids do not affect the result.
func ContentHash(evseIDs []string) string {
	ids := Canonical(evseIDs)
	if ids == nil {
		ids = []string{}
	}
	data, err := encMode.Marshal(ids)
	if err != nil {
		// A []string always encodes.
		panic("dedup: encode evse id set: " + err.Error())
	}

	hasher, err := blake3.NewKeyed(evseSetDomainKey[:])
	if err != nil {
		panic("dedup: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))[:HashLength]
}

// ────────────────────────────────────────────────────────────────────────────────
// Index
// ────────────────────────────────────────────────────────────────────────────────

// PriceGroupKey describes the connector set of one plug group.
type PriceGroupKey struct {
	LocationID     string
	PlugType       string
	Speed          string
	EvseIDs        []string
	MixedPlugTypes bool
	MixedSpeeds    bool
}

// Index resolves price group keys to surrogate ids, creating groups on first
// encounter.
type Index struct {
	writer   store.Writer
	resolver *query.Resolver
	logger   *zap.Logger
}

// NewIndex creates an index that inserts through writer and resolves connector
// groups through resolver.
func NewIndex(writer store.Writer, resolver *query.Resolver, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{writer: writer, resolver: resolver, logger: logger}
}

// LookupOrCreate returns the priceGroupId for key and whether it was created by
// this call. The lookup and the insert are not atomic: when the insert loses a
// race on the (locationId, evseIdsHash) unique index, the winner's id is
// returned.
func (x *Index) LookupOrCreate(ctx context.Context, tx store.DBTX, key PriceGroupKey) (int64, bool, error) {
	hash := ContentHash(key.EvseIDs)

	id, found, err := x.lookup(ctx, tx, key.LocationID, hash)
	if err != nil {
		return 0, false, err
	}
	if found {
		x.logger.Debug("price group exists",
			zap.String("location_id", key.LocationID),
			zap.String("hash", hash),
			zap.Int64("price_group_id", id),
		)
		return id, false, nil
	}

	match, err := x.resolver.MatchingConnectorGroup(ctx, tx, key.LocationID, key.PlugType, key.Speed)
	if err != nil {
		return 0, false, err
	}

	raw, err := json.Marshal(Canonical(key.EvseIDs))
	if err != nil {
		return 0, false, fmt.Errorf("encode evse ids: %w", err)
	}

	row := &model.PriceGroupRow{
		LocationID:     key.LocationID,
		EvseIDsHash:    hash,
		Revision:       match.Revision,
		ConnectorGroup: match.ConnectorGroup,
		PlugType:       key.PlugType,
		Speed:          key.Speed,
		EvseIDsRawData: string(raw),
		MixedPlugTypes: key.MixedPlugTypes,
		MixedSpeeds:    key.MixedSpeeds,
	}

	created := true
	if err := x.writer.Write(ctx, tx, row); err != nil {
		if !store.IsUnique(err) {
			return 0, false, err
		}
		x.logger.Debug("price group created concurrently, re-reading",
			zap.String("location_id", key.LocationID),
			zap.String("hash", hash),
		)
		created = false
	}

	id, found, err = x.lookup(ctx, tx, key.LocationID, hash)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, fmt.Errorf("price group %s/%s missing after insert", key.LocationID, hash)
	}
	if created {
		x.logger.Debug("price group created",
			zap.String("location_id", key.LocationID),
			zap.String("hash", hash),
			zap.Int64("price_group_id", id),
			zap.Bool("resolved", match.Found),
		)
	}
	return id, created, nil
}

func (x *Index) lookup(ctx context.Context, tx store.DBTX, locationID, hash string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT priceGroupId FROM priceGroups WHERE locationId = ? AND evseIdsHash = ?`,
		locationID, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup price group: %w", err)
	}
	return id, true, nil
}
