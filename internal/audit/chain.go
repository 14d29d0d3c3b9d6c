// Package audit provides a tamper-evident hash chain over accepted change
// sets: each batch's Merkle root over its accepted op ids is linked to the
// previous link's hash, so any edit to op history downstream of a link
// invalidates every link after it.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// genesisHash seeds the chain so the first link still has a well-defined
// "previous hash" to commit to.
const genesisHash = "genesis"

// Link is one entry in the audit chain: the Merkle root over one accepted
// change set's op ids, hash-linked to the previous link.
type Link struct {
	Sequence    int64     `json:"sequence"`
	State       string    `json:"state"`
	ChangeSetID string    `json:"change_set_id"`
	OpIDs       []string  `json:"op_ids"`
	MerkleRoot  string    `json:"merkle_root"`
	PrevHash    string    `json:"prev_hash"`
	LinkHash    string    `json:"link_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chain is an in-memory, append-only hash chain. Safe for concurrent use.
type Chain struct {
	mu    sync.Mutex
	links []Link
}

// New returns an empty chain.
func New() *Chain {
	return &Chain{}
}

// Restore rebuilds a chain from previously persisted links, for startup
// recovery. It does not re-verify them; call Verify explicitly if the
// caller wants tamper detection on load.
func Restore(links []Link) *Chain {
	return &Chain{links: append([]Link(nil), links...)}
}

// Append records one accepted change set's op ids as the next link and
// returns it. opIDs need not be pre-sorted; Append sorts them so the
// Merkle root is independent of acceptance-evaluation order.
func (c *Chain) Append(state, changeSetID string, opIDs []string) Link {
	c.mu.Lock()
	defer c.mu.Unlock()

	leaves := append([]string(nil), opIDs...)
	sort.Strings(leaves)

	prevHash := genesisHash
	if len(c.links) > 0 {
		prevHash = c.links[len(c.links)-1].LinkHash
	}

	link := Link{
		Sequence:    int64(len(c.links)) + 1,
		State:       state,
		ChangeSetID: changeSetID,
		OpIDs:       leaves,
		MerkleRoot:  BuildMerkleRoot(leaves),
		PrevHash:    prevHash,
		CreatedAt:   time.Now().UTC(),
	}
	link.LinkHash = computeLinkHash(link)
	c.links = append(c.links, link)
	return link
}

// Links returns a copy of every link recorded so far.
func (c *Chain) Links() []Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Link(nil), c.links...)
}

// Verify walks the chain recomputing each link's hash from its recorded
// fields and confirming it matches both the stored LinkHash and the next
// link's PrevHash. Returns the index of the first broken link, or -1 if
// the chain is intact.
func (c *Chain) Verify() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := genesisHash
	for i, link := range c.links {
		if link.PrevHash != prevHash {
			return i
		}
		if computeLinkHash(link) != link.LinkHash {
			return i
		}
		prevHash = link.LinkHash
	}
	return -1
}

// computeLinkHash hashes a link's fields with length-prefixed encoding, the
// same boundary-safe scheme the teacher's computeV2Hash uses for decision
// content hashes, generalized to an arbitrary field list.
func computeLinkHash(l Link) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(fmt.Sprintf("%d", l.Sequence))
	writeField(l.State)
	writeField(l.ChangeSetID)
	writeField(l.MerkleRoot)
	writeField(l.PrevHash)
	writeField(l.CreatedAt.UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(h.Sum(nil))
}

// hashPair produces SHA-256(0x01 || len(a) || a || b) as a hex string. The
// 0x01 prefix domain-separates internal Merkle nodes from leaf content
// (which are themselves op ids in "op_<hash>" form, never raw bytes that
// could collide with this encoding).
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	aBytes := []byte(a)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(aBytes)))
	h.Write(lenBuf[:])
	h.Write(aBytes)
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf strings, sorted by the
// caller for determinism, and returns the root. Odd-length levels hash the
// last node with itself for structural binding.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}
	level := make([]string, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}
