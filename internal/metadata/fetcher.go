// Package metadata fetches token identity (name, symbol, decimals, supply)
// from SPL mint accounts and Metaplex metadata accounts.
package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"launchwatch/internal/solana"
)

// Metaplex Token Metadata program ID
const metaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

// Metadata is the fetched identity of one token.
type Metadata struct {
	Mint      string
	Name      string
	Symbol    string
	URI       string
	Decimals  int
	Supply    float64 // decimals-adjusted
	FetchedAt int64   // Unix ms
}

// Fetcher resolves token metadata over the RPC layer.
type Fetcher struct {
	rpc solana.RPCClient
}

// NewFetcher creates a metadata fetcher.
func NewFetcher(rpc solana.RPCClient) *Fetcher {
	return &Fetcher{rpc: rpc}
}

// Fetch returns metadata for a given mint address, combining the SPL mint
// account (decimals, supply) with the Metaplex metadata account (name,
// symbol, uri). A missing Metaplex account is not an error: fresh launches
// often have none yet.
func (f *Fetcher) Fetch(ctx context.Context, mint string) (*Metadata, error) {
	meta := &Metadata{
		Mint:      mint,
		FetchedAt: time.Now().UnixMilli(),
	}

	mintInfo, err := f.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint account info: %w", err)
	}
	if mintInfo == nil {
		return nil, fmt.Errorf("mint account %s not found", mint)
	}

	if err := parseMintData(mintInfo.Data, meta); err != nil {
		return nil, fmt.Errorf("parse mint account: %w", err)
	}

	pda := DeriveMetadataPDA(mint)
	if pda != "" {
		metaInfo, err := f.rpc.GetAccountInfo(ctx, pda)
		if err == nil && metaInfo != nil {
			parseMetaplexData(metaInfo.Data, meta)
		}
	}

	return meta, nil
}

// parseMintData parses SPL Token Mint account data.
// SPL Token Mint layout (82 bytes):
// - mintAuthority: Option<Pubkey> (36 bytes: 4 + 32)
// - supply: u64 (8 bytes)
// - decimals: u8 (1 byte)
// - isInitialized: bool (1 byte)
// - freezeAuthority: Option<Pubkey> (36 bytes: 4 + 32)
func parseMintData(data string, meta *Metadata) error {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode mint data: %w", err)
	}

	if len(decoded) < 82 {
		return fmt.Errorf("mint data too short: %d", len(decoded))
	}

	supply := binary.LittleEndian.Uint64(decoded[36:44])
	decimals := int(decoded[44])

	meta.Decimals = decimals
	meta.Supply = float64(supply) / math.Pow(10, float64(decimals))
	return nil
}

// parseMetaplexData parses Metaplex Token Metadata account data.
// Layout:
// - key: u8 (1 byte, 4 for MetadataV1)
// - updateAuthority: Pubkey (32 bytes)
// - mint: Pubkey (32 bytes)
// - name: String (4 + length bytes, max 32 chars)
// - symbol: String (4 + length bytes, max 10 chars)
// - uri: String (4 + length bytes, max 200 chars)
func parseMetaplexData(data string, meta *Metadata) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return
	}
	if len(decoded) < 100 {
		return
	}
	if decoded[0] != 4 { // MetadataV1 key
		return
	}

	// Skip: key(1) + updateAuthority(32) + mint(32) = 65 bytes
	offset := 65

	name, offset, ok := readBorshString(decoded, offset, 100)
	if !ok {
		return
	}
	if name != "" {
		meta.Name = name
	}

	symbol, offset, ok := readBorshString(decoded, offset, 20)
	if !ok {
		return
	}
	if symbol != "" {
		meta.Symbol = symbol
	}

	uri, _, ok := readBorshString(decoded, offset, 250)
	if ok && uri != "" {
		meta.URI = uri
	}
}

// readBorshString reads a borsh string (4-byte little-endian length + data),
// trimming NUL padding.
func readBorshString(data []byte, offset, maxLen int) (string, int, bool) {
	if offset+4 > len(data) {
		return "", offset, false
	}
	length := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	if length > maxLen || offset+length > len(data) {
		return "", offset, false
	}
	s := strings.TrimRight(string(data[offset:offset+length]), "\x00")
	return s, offset + length, true
}

// DeriveMetadataPDA derives the Metaplex metadata address for a mint.
// Seeds: ["metadata", metaplex_program_id, mint]
func DeriveMetadataPDA(mint string) string {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return ""
	}
	programBytes, err := base58.Decode(metaplexProgramID)
	if err != nil {
		return ""
	}
	if len(mintBytes) != 32 || len(programBytes) != 32 {
		return ""
	}

	seeds := [][]byte{
		[]byte("metadata"),
		programBytes,
		mintBytes,
	}
	return derivePDA(seeds, programBytes)
}

// derivePDA derives a Program Derived Address: sha256 of the seeds plus a
// bump byte, program ID and the "ProgramDerivedAddress" marker, taking the
// highest bump whose hash is off the ed25519 curve.
func derivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}
	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
