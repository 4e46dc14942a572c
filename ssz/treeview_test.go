package ssz

import (
	"errors"
	"testing"

	"github.com/beacon-stf/corestate/pool"
)

// fieldPair mimics container{a:u32, b:bytes4}.
type fieldPair struct {
	a uint32
	b [4]byte
}

func (f fieldPair) hashTreeRoot(p *pool.Pool) (pool.NodeId, [32]byte, error) {
	aRoot := HashTreeRootUint32(f.a)
	var bPadded [32]byte
	copy(bPadded[:4], f.b[:])
	view, err := BuildContainer(p, [][32]byte{aRoot, bPadded})
	if err != nil {
		return pool.NilNode, [32]byte{}, err
	}
	root, err := view.Commit()
	if err != nil {
		return pool.NilNode, [32]byte{}, err
	}
	return view.Root(), root, nil
}

func TestTreeViewVectorCompositeSetGetCommit(t *testing.T) {
	p := pool.New(0)

	e0 := fieldPair{a: 1, b: [4]byte{0x11, 0x11, 0, 0}}
	e1 := fieldPair{a: 2, b: [4]byte{0x22, 0x22, 0, 0}}

	n0, _, err := e0.hashTreeRoot(p)
	if err != nil {
		t.Fatal(err)
	}
	n1, _, err := e1.hashTreeRoot(p)
	if err != nil {
		t.Fatal(err)
	}
	h0, _ := p.GetHash(n0)
	h1, _ := p.GetHash(n1)

	vec, err := BuildVector(p, [][32]byte{h0, h1})
	if err != nil {
		t.Fatal(err)
	}

	e1Replacement := fieldPair{a: 9, b: [4]byte{0x99, 0x99, 0, 0}}
	n1New, _, err := e1Replacement.hashTreeRoot(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := vec.Set(1, n1New); err != nil {
		t.Fatal(err)
	}
	if got, err := vec.Get(1); err != nil || got != n1New {
		t.Fatalf("Get(1) after Set = %v (err %v), want %v", got, err, n1New)
	}
	gotRoot, err := vec.Commit()
	if err != nil {
		t.Fatal(err)
	}

	h1New, _ := p.GetHash(n1New)
	wantVec, err := BuildVector(p, [][32]byte{h0, h1New})
	if err != nil {
		t.Fatal(err)
	}
	wantRoot, err := wantVec.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if gotRoot != wantRoot {
		t.Fatalf("composite vector root after set+commit mismatch: got %x want %x", gotRoot, wantRoot)
	}
}

func TestListViewPushAndListFull(t *testing.T) {
	p := pool.New(0)
	lv, err := BuildList(p, nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	l0, _ := p.NewLeaf([32]byte{1})
	l1, _ := p.NewLeaf([32]byte{2})
	if err := lv.Push(l0); err != nil {
		t.Fatal(err)
	}
	if err := lv.Push(l1); err != nil {
		t.Fatal(err)
	}
	l2, _ := p.NewLeaf([32]byte{3})
	if err := lv.Push(l2); !errors.Is(err, ErrListFull) {
		t.Fatalf("expected ErrListFull, got %v", err)
	}
	if lv.Len() != 2 {
		t.Fatalf("expected length 2, got %d", lv.Len())
	}
}

func TestContainerViewClearCacheIdentity(t *testing.T) {
	p := pool.New(0)
	l0, _ := p.NewLeaf([32]byte{1})
	l1, _ := p.NewLeaf([32]byte{2})
	view, err := BuildVector(p, func() [][32]byte {
		h0, _ := p.GetHash(l0)
		h1, _ := p.GetHash(l1)
		return [][32]byte{h0, h1}
	}())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := view.Get(0); err != nil {
		t.Fatal(err)
	}
	rootBefore, err := view.Commit()
	if err != nil {
		t.Fatal(err)
	}
	view.ClearCache()
	rootAfter, err := view.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if rootBefore != rootAfter {
		t.Fatalf("ClearCache changed root: %x vs %x", rootBefore, rootAfter)
	}
}
