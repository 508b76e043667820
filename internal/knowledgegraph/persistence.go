package knowledgegraph

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kubilitics/hqee/pkg/types"
)

// formatVersion is the first byte of every persisted graph file. Bumping it
// lets Load detect and quarantine a file written by an incompatible
// version instead of misparsing it into garbage entities.
const formatVersion byte = 1

// Save serializes the entity and relationship maps to g.persistPath.
// It writes to a temp file and renames over the destination so a crash
// mid-write never corrupts the previous save.
func (g *Graph) Save() error {
	if g.persistPath == "" {
		return fmt.Errorf("knowledgegraph: no persist path configured")
	}

	tmp := g.persistPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("knowledgegraph: create temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := g.encode(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("knowledgegraph: encode: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("knowledgegraph: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("knowledgegraph: close: %w", err)
	}
	return os.Rename(tmp, g.persistPath)
}

func (g *Graph) encode(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, err := w.Write([]byte{formatVersion}); err != nil {
		return err
	}

	if err := writeUint32(w, uint32(len(g.entities))); err != nil {
		return err
	}
	for _, id := range g.sortedEntityIDs() {
		if err := encodeEntity(w, g.entities[id]); err != nil {
			return err
		}
	}

	total := 0
	for _, rels := range g.relationships {
		total += len(rels)
	}
	if err := writeUint32(w, uint32(total)); err != nil {
		return err
	}
	for _, id := range g.sortedEntityIDs() {
		for _, rel := range g.relationships[id] {
			if err := encodeRelationship(w, rel); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeEntity(w io.Writer, e types.CodeEntity) error {
	for _, s := range []string{e.ID, e.SimpleName, e.FQN, e.Type, e.FilePath} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(e.StartLine)); err != nil {
		return err
	}
	return writeUint32(w, uint32(e.EndLine))
}

func encodeRelationship(w io.Writer, r types.CodeRelationship) error {
	for _, s := range []string{r.SourceID, r.TargetID, r.Type} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(r.Properties))); err != nil {
		return err
	}
	for k, v := range r.Properties {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := writeString(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// Load reads a graph previously written by Save. A missing file is treated
// as an empty graph (first run), matching Build's own "start empty"
// behavior. A file with an unrecognized version byte is quarantined by
// renaming it aside and the graph starts empty rather than risk
// misinterpreting its bytes as a newer or older layout.
func (g *Graph) Load(ctx context.Context) error {
	start := time.Now()

	if g.persistPath == "" {
		g.markReady()
		return nil
	}

	f, err := os.Open(g.persistPath)
	if os.IsNotExist(err) {
		g.markReady()
		return nil
	}
	if err != nil {
		return fmt.Errorf("knowledgegraph: open %s: %w", g.persistPath, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	version, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("knowledgegraph: read version byte: %w", err)
	}
	if version != formatVersion {
		f.Close()
		quarantinePath := fmt.Sprintf("%s.quarantined-v%d", g.persistPath, version)
		_ = os.Rename(g.persistPath, quarantinePath)
		g.markReady()
		return nil
	}

	entities, relationships, err := decode(r)
	if err != nil {
		return fmt.Errorf("knowledgegraph: decode: %w", err)
	}

	g.mu.Lock()
	g.entities = entities
	g.relationships = relationships
	g.mu.Unlock()

	g.markReady()
	g.recordRebuild(ctx, start)
	return nil
}

func decode(r io.Reader) (map[string]types.CodeEntity, map[string][]types.CodeRelationship, error) {
	entityCount, err := readUint32(r)
	if err != nil {
		return nil, nil, err
	}
	entities := make(map[string]types.CodeEntity, entityCount)
	for i := uint32(0); i < entityCount; i++ {
		e, err := decodeEntity(r)
		if err != nil {
			return nil, nil, err
		}
		entities[e.ID] = e
	}

	relCount, err := readUint32(r)
	if err != nil {
		return nil, nil, err
	}
	relationships := make(map[string][]types.CodeRelationship)
	for i := uint32(0); i < relCount; i++ {
		rel, err := decodeRelationship(r)
		if err != nil {
			return nil, nil, err
		}
		relationships[rel.SourceID] = append(relationships[rel.SourceID], rel)
	}
	return entities, relationships, nil
}

func decodeEntity(r io.Reader) (types.CodeEntity, error) {
	var e types.CodeEntity
	var err error
	if e.ID, err = readString(r); err != nil {
		return e, err
	}
	if e.SimpleName, err = readString(r); err != nil {
		return e, err
	}
	if e.FQN, err = readString(r); err != nil {
		return e, err
	}
	if e.Type, err = readString(r); err != nil {
		return e, err
	}
	if e.FilePath, err = readString(r); err != nil {
		return e, err
	}
	start, err := readUint32(r)
	if err != nil {
		return e, err
	}
	end, err := readUint32(r)
	if err != nil {
		return e, err
	}
	e.StartLine = int(start)
	e.EndLine = int(end)
	return e, nil
}

func decodeRelationship(r io.Reader) (types.CodeRelationship, error) {
	var rel types.CodeRelationship
	var err error
	if rel.SourceID, err = readString(r); err != nil {
		return rel, err
	}
	if rel.TargetID, err = readString(r); err != nil {
		return rel, err
	}
	if rel.Type, err = readString(r); err != nil {
		return rel, err
	}
	propCount, err := readUint32(r)
	if err != nil {
		return rel, err
	}
	if propCount > 0 {
		rel.Properties = make(map[string]string, propCount)
		for i := uint32(0); i < propCount; i++ {
			k, err := readString(r)
			if err != nil {
				return rel, err
			}
			v, err := readString(r)
			if err != nil {
				return rel, err
			}
			rel.Properties[k] = v
		}
	}
	return rel, nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
