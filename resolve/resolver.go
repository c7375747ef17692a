// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
)

const (
	// DefaultThreshold is the minimum similarity for a fuzzy match.
	DefaultThreshold = 0.85
	// DefaultFullScanLimit is the type size up to which fuzzy matching
	// compares against every entity of the type instead of blocking.
	DefaultFullScanLimit = 5000

	thresholdEpsilon = 1e-9
)

var (
	// ErrGraphStoreRequired is returned when no store is supplied.
	ErrGraphStoreRequired = errors.New("graph store is required")
)

// MatchMethod records how a mention found its entity.
type MatchMethod string

const (
	MatchExact      MatchMethod = "exact"
	MatchDictionary MatchMethod = "dictionary"
	MatchFuzzy      MatchMethod = "fuzzy"
	MatchMinted     MatchMethod = "minted"
)

// Resolution is the outcome of resolving one mention.
type Resolution struct {
	Entity  *core.CanonicalEntity
	Method  MatchMethod
	Score   float64
	Created bool
	// Updated is set when an existing entity gained an alias or provenance.
	Updated bool
}

// Resolver maps mentions onto canonical entities, minting new ones when no
// existing entity matches. Writes for one type are serialized so that two
// similar mentions racing each other cannot both mint.
type Resolver struct {
	store         storage.GraphStore
	taxonomy      core.Taxonomy
	dictionary    *Dictionary
	threshold     float64
	fullScanLimit int
	similarity    Similarity
	locks         map[core.EntityType]*sync.Mutex
	logger        *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold sets the fuzzy match threshold.
func WithThreshold(t float64) Option {
	return func(r *Resolver) {
		r.threshold = t
	}
}

// WithDictionary sets the curated variant dictionary.
func WithDictionary(d *Dictionary) Option {
	return func(r *Resolver) {
		r.dictionary = d
	}
}

// WithFullScanLimit sets the type size above which blocking keys are used.
func WithFullScanLimit(n int) Option {
	return func(r *Resolver) {
		r.fullScanLimit = n
	}
}

// WithSimilarity replaces the edit-distance similarity.
func WithSimilarity(s Similarity) Option {
	return func(r *Resolver) {
		r.similarity = s
	}
}

// WithTaxonomy replaces the default taxonomy.
func WithTaxonomy(t core.Taxonomy) Option {
	return func(r *Resolver) {
		r.taxonomy = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver over store.
func NewResolver(store storage.GraphStore, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, ErrGraphStoreRequired
	}
	r := &Resolver{
		store:         store,
		taxonomy:      core.DefaultTaxonomy(),
		dictionary:    NewDictionary(),
		threshold:     DefaultThreshold,
		fullScanLimit: DefaultFullScanLimit,
		similarity:    EditSimilarity,
		logger:        slog.Default().With("component", "resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.locks = make(map[core.EntityType]*sync.Mutex, len(r.taxonomy.EntityTypes))
	for _, et := range r.taxonomy.EntityTypes {
		r.locks[et] = &sync.Mutex{}
	}
	return r, nil
}

// Threshold returns the fuzzy match threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve finds or mints the canonical entity for mention and records the
// mention's alias and provenance on it. The provenance confidence, chunk and
// offset are taken from the mention.
func (r *Resolver) Resolve(ctx context.Context, mention core.EntityMention, prov core.Provenance) (*Resolution, error) {
	if err := core.ValidateMention(&mention, r.taxonomy); err != nil {
		return nil, err
	}
	key := Normalize(mention.Text)
	if key == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidMention, core.ErrEmptyContent)
	}

	mu := r.locks[mention.Type]
	mu.Lock()
	defer mu.Unlock()

	match, method, score, err := r.match(ctx, mention.Type, key, r.fullScan)
	if err != nil {
		return nil, err
	}

	aliases := []core.Alias{{Text: mention.Text, Key: key}}
	var id core.ID
	name := mention.Text
	if match != nil {
		id = match.Id
	} else {
		method = MatchMinted
		mintKey := key
		if canonical, ok := r.dictionary.Canonical(mention.Type, key); ok {
			name = canonical
			mintKey = Normalize(canonical)
			if mintKey != key {
				aliases = append([]core.Alias{{Text: canonical, Key: mintKey}}, aliases...)
			}
		}
		id = core.EntityID(mention.Type, mintKey)
	}

	var blocks []string
	for _, alias := range aliases {
		blocks = append(blocks, BlockKeys(alias.Key)...)
	}

	prov.ChunkId = mention.ChunkId
	prov.Offset = mention.Offset
	prov.Confidence = mention.Confidence
	entity, change, err := r.store.UpsertNode(ctx, storage.NodeUpsert{
		Id:          id,
		Type:        mention.Type,
		Name:        name,
		Aliases:     aliases,
		BlockKeys:   blocks,
		Description: mention.Description,
		Confidence:  mention.Confidence,
		Provenance:  &prov,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved mention",
		"text", mention.Text, "type", mention.Type, "entity", entity.Id,
		"method", method, "score", score, "created", change.Created)

	return &Resolution{
		Entity:  entity,
		Method:  method,
		Score:   score,
		Created: change.Created,
		Updated: !change.Created && (change.AliasAdded || change.ProvenanceAdded),
	}, nil
}

// Lookup is the read-only form of Resolve: it never mints and never records
// aliases or provenance. Returns storage.ErrNotFound when nothing matches.
func (r *Resolver) Lookup(ctx context.Context, text string, entityType core.EntityType) (*core.CanonicalEntity, error) {
	return r.Reader().Lookup(ctx, text, entityType)
}

// LookupAny looks text up under every type of the taxonomy.
func (r *Resolver) LookupAny(ctx context.Context, text string) ([]*core.CanonicalEntity, error) {
	return r.Reader().LookupAny(ctx, text)
}

// Reader returns a read-only view that counts each type once, so a caller
// issuing many lookups for one query decides between full scan and blocking
// a single time per type. A Reader is not safe for concurrent use.
func (r *Resolver) Reader() *Reader {
	return &Reader{resolver: r, counts: make(map[core.EntityType]int)}
}

// Reader matches text the way Resolve does without writing.
type Reader struct {
	resolver *Resolver
	counts   map[core.EntityType]int
}

// Lookup returns the entity text resolves to, or storage.ErrNotFound.
func (rd *Reader) Lookup(ctx context.Context, text string, entityType core.EntityType) (*core.CanonicalEntity, error) {
	r := rd.resolver
	if !r.taxonomy.HasEntityType(entityType) {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownEntityType, entityType)
	}
	key := Normalize(text)
	if key == "" {
		return nil, storage.ErrNotFound
	}
	match, _, _, err := r.match(ctx, entityType, key, rd.fullScan)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, storage.ErrNotFound
	}
	return match, nil
}

// LookupAny looks text up under every type of the taxonomy.
func (rd *Reader) LookupAny(ctx context.Context, text string) ([]*core.CanonicalEntity, error) {
	var found []*core.CanonicalEntity
	for _, et := range rd.resolver.taxonomy.EntityTypes {
		entity, err := rd.Lookup(ctx, text, et)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found = append(found, entity)
	}
	return found, nil
}

func (rd *Reader) fullScan(ctx context.Context, entityType core.EntityType) (bool, error) {
	count, ok := rd.counts[entityType]
	if !ok {
		var err error
		if count, err = rd.resolver.store.CountType(ctx, entityType); err != nil {
			return false, err
		}
		rd.counts[entityType] = count
	}
	return count <= rd.resolver.fullScanLimit, nil
}

// scanPolicy reports whether fuzzy matching compares against every entity
// of a type rather than its blocking candidates.
type scanPolicy func(ctx context.Context, entityType core.EntityType) (bool, error)

// fullScan counts the type afresh; Resolve holds the type lock, so the
// count cannot go stale while it matches.
func (r *Resolver) fullScan(ctx context.Context, entityType core.EntityType) (bool, error) {
	count, err := r.store.CountType(ctx, entityType)
	if err != nil {
		return false, err
	}
	return count <= r.fullScanLimit, nil
}

func (r *Resolver) match(ctx context.Context, entityType core.EntityType, key string, policy scanPolicy) (*core.CanonicalEntity, MatchMethod, float64, error) {
	entity, err := r.findAlias(ctx, entityType, key)
	if err != nil || entity != nil {
		return entity, MatchExact, 1, err
	}

	if canonical, ok := r.dictionary.Canonical(entityType, key); ok {
		if ck := Normalize(canonical); ck != key {
			entity, err := r.findAlias(ctx, entityType, ck)
			if err != nil || entity != nil {
				return entity, MatchDictionary, 1, err
			}
		}
	}

	fullScan, err := policy(ctx, entityType)
	if err != nil {
		return nil, "", 0, err
	}
	best, score, err := r.fuzzy(ctx, entityType, key, fullScan)
	if err != nil || best == nil {
		return nil, "", 0, err
	}
	return best, MatchFuzzy, score, nil
}

func (r *Resolver) findAlias(ctx context.Context, entityType core.EntityType, key string) (*core.CanonicalEntity, error) {
	entity, err := r.store.FindByAlias(ctx, entityType, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return entity, err
}

// fuzzy returns the best candidate at or above the threshold. Equal scores
// go to the earliest created entity.
func (r *Resolver) fuzzy(ctx context.Context, entityType core.EntityType, key string, fullScan bool) (*core.CanonicalEntity, float64, error) {
	var best *core.CanonicalEntity
	bestScore := -1.0
	consider := func(e *core.CanonicalEntity) error {
		score := r.score(e, key)
		if score > bestScore || (score == bestScore && best != nil && e.Seq < best.Seq) {
			best, bestScore = e, score
		}
		return nil
	}

	if fullScan {
		if err := r.store.ScanType(ctx, entityType, consider); err != nil {
			return nil, 0, err
		}
	} else {
		candidates, err := r.store.FindCandidates(ctx, entityType, BlockKeys(key))
		if err != nil {
			return nil, 0, err
		}
		for _, c := range candidates {
			consider(c)
		}
	}

	if best == nil || bestScore < r.threshold-thresholdEpsilon {
		return nil, 0, nil
	}
	if math.Abs(bestScore-r.threshold) <= thresholdEpsilon {
		r.logger.Warn("fuzzy match at threshold",
			"err", core.ErrResolutionAmbiguous, "key", key, "entity", best.Id, "score", bestScore)
	}
	return best, bestScore, nil
}

// score is the best similarity between key and any alias of e.
func (r *Resolver) score(e *core.CanonicalEntity, key string) float64 {
	best := r.similarity(key, Normalize(e.Name))
	for _, alias := range e.Aliases {
		best = max(best, r.similarity(key, alias.Key))
	}
	return best
}
