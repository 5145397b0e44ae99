package storage

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Block layout constants. DataBlockSize is the payload carried per
// block; ReferenceBlockSize is the 4-byte big-endian next-block
// pointer every version carries; V2 additionally carries a
// SizeBlockSize payload-length field and an 8-byte checksum trailer.
const (
	DataBlockSize      = 4096
	ReferenceBlockSize = 4
	SizeBlockSize      = 4
	ChecksumSize       = 8

	versionBlock = 0 // block 0: version marker, never part of the arena
	rootBlock    = 1 // block 1: logical root slot, never freed
)

const (
	V1 = 1
	V2 = 2
)

var (
	magicV1 = [8]byte{'R', 'D', 'B', 'S', 'V', '1', 0, 0}
	magicV2 = [8]byte{'R', 'D', 'B', 'S', 'V', '2', 0, 0}
)

func totalBlockSize(version int) int {
	if version == V2 {
		return DataBlockSize + ReferenceBlockSize + SizeBlockSize + ChecksumSize
	}
	return DataBlockSize + ReferenceBlockSize
}

// Config configures an Engine. Defaults are applied by Open.
type Config struct {
	BlockVersion      int // 1 or 2; default 2 for new files
	ChecksumAlgorithm int // ChecksumXXH3 or ChecksumBlake2b; V2 only
	CacheCapacity     int // block cache size; default 100
}

// Engine is an open paged block storage file.
type Engine struct {
	path   string
	file   *os.File
	guard  *guardLock
	config Config

	version   int
	blockSize int // totalBlockSize for this file

	mu        sync.RWMutex
	numBlocks uint32
	free      *freeList
	cache     *blockCache
	closed    atomic.Bool
}

// Open opens or creates a block storage file at path.
func Open(path string, config Config) (*Engine, error) {
	if config.BlockVersion == 0 {
		config.BlockVersion = V2
	}
	if config.ChecksumAlgorithm == 0 {
		config.ChecksumAlgorithm = ChecksumXXH3
	}
	if config.CacheCapacity == 0 {
		config.CacheCapacity = 100
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	guard, err := acquireGuard(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	e := &Engine{
		path:   path,
		file:   f,
		guard:  guard,
		config: config,
		free:   newFreeList(),
		cache:  newBlockCache(config.CacheCapacity),
	}

	info, err := f.Stat()
	if err != nil {
		guard.release()
		f.Close()
		return nil, err
	}

	if info.Size() == 0 {
		e.version = config.BlockVersion
		e.blockSize = totalBlockSize(e.version)
		if err := e.initEmpty(); err != nil {
			guard.release()
			f.Close()
			return nil, err
		}
	} else {
		e.version = detectVersion(f)
		e.blockSize = totalBlockSize(e.version)
		e.numBlocks = uint32(info.Size() / int64(e.blockSize))
		if e.numBlocks < 2 {
			e.numBlocks = 2
		}
		e.scanFreeBlocks()
	}

	return e, nil
}

// detectVersion reads the 8-byte magic at block 0 to determine V1/V2.
// Files with no recognisable magic (e.g. pre-existing empty arenas)
// default to V1, the conservative choice.
func detectVersion(f *os.File) int {
	var buf [8]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return V1
	}
	if buf == magicV2 {
		return V2
	}
	return V1
}

func (e *Engine) initEmpty() error {
	marker := magicV1
	if e.version == V2 {
		marker = magicV2
	}
	block0 := make([]byte, e.blockSize)
	copy(block0, marker[:])
	if _, err := e.file.WriteAt(block0, 0); err != nil {
		return err
	}
	block1 := make([]byte, e.blockSize)
	if _, err := e.file.WriteAt(block1, int64(e.blockSize)); err != nil {
		return err
	}
	e.numBlocks = 2
	return nil
}

// scanFreeBlocks walks [2, numBlocks) on startup, pushing every
// all-zero block onto the free list.
func (e *Engine) scanFreeBlocks() {
	for b := uint32(2); b < e.numBlocks; b++ {
		raw, err := e.readBlockRaw(b)
		if err != nil {
			continue
		}
		if isAllZero(raw) {
			e.free.push(b)
		}
	}
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (e *Engine) isClosed() bool { return e.closed.Load() }

// Close releases the file handle and OS guard. Safe to call once.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guard.release()
	return e.file.Close()
}

// --- raw block I/O ---

// readBlockRaw reads block directly from disk, bypassing the cache.
// Reading beyond the file's current extent returns a zeroed block
// rather than an error.
func (e *Engine) readBlockRaw(block uint32) ([]byte, error) {
	buf := make([]byte, e.blockSize)
	if block >= e.numBlocks {
		return buf, nil
	}
	if _, err := e.file.ReadAt(buf, int64(block)*int64(e.blockSize)); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

func (e *Engine) writeBlockRaw(block uint32, data []byte) error {
	if _, err := e.file.WriteAt(data, int64(block)*int64(e.blockSize)); err != nil {
		return err
	}
	if block+1 > e.numBlocks {
		e.numBlocks = block + 1
	}
	return nil
}

// readBlock returns block content through the cache.
func (e *Engine) readBlock(block uint32) ([]byte, error) {
	if cached, ok := e.cache.get(block); ok {
		return cached, nil
	}
	raw, err := e.readBlockRaw(block)
	if err != nil {
		return nil, err
	}
	e.cache.put(block, raw)
	return raw, nil
}

// writeBlock writes block content and updates the cache in lock-step.
func (e *Engine) writeBlock(block uint32, data []byte) error {
	if err := e.writeBlockRaw(block, data); err != nil {
		return err
	}
	e.cache.put(block, data)
	return nil
}

// deleteBlock zero-fills block on disk and in cache. It does not
// touch the free list; callers push freed block numbers themselves.
func (e *Engine) deleteBlock(block uint32) error {
	zeros := make([]byte, e.blockSize)
	if err := e.writeBlockRaw(block, zeros); err != nil {
		return err
	}
	e.cache.put(block, zeros)
	return nil
}

// --- block codec ---

// encodeBlock packs payload (already truncated/padded to at most
// DataBlockSize bytes of real content) plus the next-pointer (and, for
// V2, the meaningful-length and checksum trailer) into one on-disk
// block.
func (e *Engine) encodeBlock(payload []byte, next uint32) []byte {
	buf := make([]byte, e.blockSize)
	n := copy(buf, payload)
	binary.BigEndian.PutUint32(buf[DataBlockSize:DataBlockSize+ReferenceBlockSize], next)
	if e.version == V2 {
		off := DataBlockSize + ReferenceBlockSize
		binary.BigEndian.PutUint32(buf[off:off+SizeBlockSize], uint32(n))
		sum := checksum8(e.config.ChecksumAlgorithm, buf[:DataBlockSize+ReferenceBlockSize+SizeBlockSize])
		copy(buf[off+SizeBlockSize:off+SizeBlockSize+ChecksumSize], sum[:])
	}
	return buf
}

// decodeBlock unpacks a block's payload, next-pointer, and (for V2)
// meaningful-length. For V1 the full DataBlockSize is returned
// verbatim; trailing-zero trimming is a whole-chain concern handled by
// ReadData, not a per-block one.
func (e *Engine) decodeBlock(raw []byte) (payload []byte, next uint32, length int, err error) {
	if len(raw) != e.blockSize {
		return nil, 0, 0, ErrCorruptChain
	}
	next = binary.BigEndian.Uint32(raw[DataBlockSize : DataBlockSize+ReferenceBlockSize])
	if e.version == V2 {
		off := DataBlockSize + ReferenceBlockSize
		length = int(binary.BigEndian.Uint32(raw[off : off+SizeBlockSize]))
		wantSum := checksum8(e.config.ChecksumAlgorithm, raw[:off+SizeBlockSize])
		var gotSum [ChecksumSize]byte
		copy(gotSum[:], raw[off+SizeBlockSize:off+SizeBlockSize+ChecksumSize])
		if wantSum != gotSum {
			return nil, 0, 0, ErrCorruptChain
		}
		if length > DataBlockSize {
			return nil, 0, 0, ErrCorruptChain
		}
		return raw[:DataBlockSize], next, length, nil
	}
	return raw[:DataBlockSize], next, DataBlockSize, nil
}

// --- public operations ---

// AllocateBlock returns the smallest previously-freed block, or
// extends the arena by one block. Block 1 is never returned.
func (e *Engine) AllocateBlock(sess *Session) (uint32, error) {
	s, owned, err := e.ensureWrite(sess)
	if err != nil {
		return 0, err
	}
	if owned {
		defer s.End()
	}
	return e.allocateLocked()
}

func (e *Engine) allocateLocked() (uint32, error) {
	if b, ok := e.free.pop(); ok {
		return b, nil
	}
	b := e.numBlocks
	if b <= rootBlock {
		b = rootBlock + 1
	}
	e.numBlocks = b + 1
	return b, nil
}

// WriteData writes bytes across a chain starting at startingBlock (if
// non-nil) or a freshly allocated block, returning the chain's root
// block. Write operations ensure a write session exists even if none
// is passed explicitly.
func (e *Engine) WriteData(sess *Session, data []byte, startingBlock *uint32) (uint32, error) {
	s, owned, err := e.ensureWrite(sess)
	if err != nil {
		return 0, err
	}
	if owned {
		defer s.End()
	}

	payload := data
	if e.version == V2 {
		payload = compressPayload(data)
	}

	chunks := chunk(payload, DataBlockSize)
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	blocks := make([]uint32, len(chunks))
	if startingBlock != nil {
		blocks[0] = *startingBlock
		e.free.reclaim(*startingBlock)
	} else {
		b, err := e.allocateLocked()
		if err != nil {
			return 0, err
		}
		blocks[0] = b
	}
	for i := 1; i < len(blocks); i++ {
		b, err := e.allocateLocked()
		if err != nil {
			return 0, err
		}
		blocks[i] = b
	}

	for i, c := range chunks {
		var next uint32
		if i+1 < len(blocks) {
			next = blocks[i+1]
		}
		if err := e.writeBlock(blocks[i], e.encodeBlock(c, next)); err != nil {
			return 0, err
		}
	}

	return blocks[0], nil
}

// ReadData walks the chain from root, concatenating payloads and
// reversing compression (V2) or trimming trailing zero padding (V1).
func (e *Engine) ReadData(sess *Session, root uint32) ([]byte, error) {
	s, owned, err := e.ensureRead(sess)
	if err != nil {
		return nil, err
	}
	if owned {
		defer s.End()
	}

	var buf bytes.Buffer
	block := root
	visited := make(map[uint32]bool)
	for {
		if visited[block] {
			return nil, ErrCorruptChain
		}
		visited[block] = true

		raw, err := e.readBlock(block)
		if err != nil {
			return nil, err
		}
		payload, next, length, err := e.decodeBlock(raw)
		if err != nil {
			return nil, err
		}
		if e.version == V2 {
			buf.Write(payload[:length])
		} else {
			buf.Write(payload)
		}
		if next == 0 {
			break
		}
		block = next
	}

	raw := buf.Bytes()
	if e.version == V2 {
		return decompressPayload(raw)
	}
	return trimTrailingZeros(raw), nil
}

// DeleteData walks the chain, zero-fills each block, and frees every
// block except block 1 (which is never freed).
func (e *Engine) DeleteData(sess *Session, root uint32) error {
	s, owned, err := e.ensureWrite(sess)
	if err != nil {
		return err
	}
	if owned {
		defer s.End()
	}
	if root == rootBlock {
		return ErrRootBlockReserved
	}

	block := root
	visited := make(map[uint32]bool)
	for {
		if visited[block] {
			return ErrCorruptChain
		}
		visited[block] = true

		raw, err := e.readBlock(block)
		if err != nil {
			return err
		}
		_, next, _, err := e.decodeBlock(raw)
		if err != nil {
			return err
		}
		if err := e.deleteBlock(block); err != nil {
			return err
		}
		if block != rootBlock {
			e.free.push(block)
		}
		if next == 0 {
			break
		}
		block = next
	}
	return nil
}

// IsEmpty reports whether block is beyond the arena's extent or is
// entirely zero bytes.
func (e *Engine) IsEmpty(sess *Session, block uint32) (bool, error) {
	s, owned, err := e.ensureRead(sess)
	if err != nil {
		return false, err
	}
	if owned {
		defer s.End()
	}
	if block >= e.numBlocks {
		return true, nil
	}
	raw, err := e.readBlock(block)
	if err != nil {
		return false, err
	}
	return isAllZero(raw), nil
}

func chunk(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var out [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

// trimTrailingZeros drops a trailing run of zero bytes, the V1
// heuristic for recovering payload length since V1 stores none
// explicitly.
func trimTrailingZeros(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}
