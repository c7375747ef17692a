package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/graphrag/core"
)

// Key prefixes for different data types
const (
	entityRecordPrefix = "entrec"
	entityAliasPrefix  = "entali"
	entityBlockPrefix  = "entblk"
	entityTypePrefix   = "enttyp"
	entitySeq          = "entseq"
	edgeRecordPrefix   = "edgrec"
	edgeAdjacentPrefix = "edgadj"
	chunkRecordPrefix  = "chkrec"
	checkpointPrefix   = "chkpnt"
)

// keySep separates variable-length key parts. Normalized text never holds it.
const keySep = 0x00

// makeEntityKey generates a key for an entity by ID.
func makeEntityKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", entityRecordPrefix, id))
}

// makeAliasKey generates the alias index key.
// Format: prefix:type\x00alias
func makeAliasKey(entityType core.EntityType, alias string) []byte {
	buf := make([]byte, 0, len(entityAliasPrefix)+len(entityType)+len(alias)+2)
	buf = append(buf, entityAliasPrefix+":"...)
	buf = append(buf, entityType...)
	buf = append(buf, keySep)
	return append(buf, alias...)
}

// makePartialBlockKey generates the prefix of all entities under one blocking key.
// Format: prefix:type\x00block\x00
func makePartialBlockKey(entityType core.EntityType, block string) []byte {
	buf := make([]byte, 0, len(entityBlockPrefix)+len(entityType)+len(block)+3)
	buf = append(buf, entityBlockPrefix+":"...)
	buf = append(buf, entityType...)
	buf = append(buf, keySep)
	buf = append(buf, block...)
	return append(buf, keySep)
}

// makeBlockKey generates a composite key for the blocking index.
// Format: prefix:type\x00block\x00id
func makeBlockKey(entityType core.EntityType, block string, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(makePartialBlockKey(entityType, block), uint64(id))
}

// makePartialTypeKey generates the prefix of the per-type creation-order index.
func makePartialTypeKey(entityType core.EntityType) []byte {
	buf := make([]byte, 0, len(entityTypePrefix)+len(entityType)+2)
	buf = append(buf, entityTypePrefix+":"...)
	buf = append(buf, entityType...)
	return append(buf, keySep)
}

// makeTypeKey generates a composite key for the type index.
// Format: prefix:type\x00seq id
// Written in BigEndian order so lexicographic sort follows creation order.
func makeTypeKey(entityType core.EntityType, seq uint64, id core.ID) []byte {
	buf := makePartialTypeKey(entityType)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// typeFromTypeKey extracts the entity type from a type index key.
func typeFromTypeKey(key []byte) core.EntityType {
	rest := key[len(entityTypePrefix)+1:]
	for i, b := range rest {
		if b == keySep {
			return core.EntityType(rest[:i])
		}
	}
	return ""
}

// idFromSuffix reads the trailing 8-byte ID of a composite key.
func idFromSuffix(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeEdgeKey generates a key for an edge.
// Format: prefix:subject object label
func makeEdgeKey(subject core.ID, label core.RelationLabel, object core.ID) []byte {
	buf := make([]byte, 0, len(edgeRecordPrefix)+17+len(label))
	buf = append(buf, edgeRecordPrefix+":"...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(subject))
	buf = binary.BigEndian.AppendUint64(buf, uint64(object))
	return append(buf, label...)
}

// labelFromEdgeKey extracts the relation label from an edge key.
func labelFromEdgeKey(key []byte) core.RelationLabel {
	return core.RelationLabel(key[len(edgeRecordPrefix)+17:])
}

// makePartialAdjacentKey generates the prefix of all edges touching a node.
func makePartialAdjacentKey(node core.ID) []byte {
	buf := make([]byte, 0, len(edgeAdjacentPrefix)+9)
	buf = append(buf, edgeAdjacentPrefix+":"...)
	return binary.BigEndian.AppendUint64(buf, uint64(node))
}

// makeAdjacentKey generates a composite key for the adjacency index.
// Format: prefix:node edgekey
func makeAdjacentKey(node core.ID, edgeKey []byte) []byte {
	return append(makePartialAdjacentKey(node), edgeKey...)
}

// edgeKeyFromAdjacent extracts the edge key from an adjacency key.
func edgeKeyFromAdjacent(key []byte) []byte {
	return key[len(edgeAdjacentPrefix)+9:]
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id string) []byte {
	return []byte(chunkRecordPrefix + ":" + id)
}

// makeCheckpointKey generates the key of a maintenance job marker.
func makeCheckpointKey(processorType string) []byte {
	return []byte(checkpointPrefix + ":" + processorType)
}
