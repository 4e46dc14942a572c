package forks

import "github.com/beacon-stf/corestate/ssz"

// List length bounds for BeaconBlockBody's variable-length fields, per the
// consensus-spec preset (mainnet values; Minimal test configs reuse the
// same bounds since they only affect committee/epoch sizing, not these).
const (
	maxProposerSlashings  = 16
	maxAttesterSlashings  = 2
	maxAttestations       = 128
	maxDeposits           = 16
	maxVoluntaryExits     = 16
	maxBlsToExecutionChgs = 16
	maxBlobCommitments    = 4096
	maxDepositRequests    = 8192
	maxWithdrawalRequests = 16
	maxConsolidationReqs  = 2
	maxValidatorsPerCommittee = 2048
)

func (h SignedHeader) HashTreeRoot() (Root, error) {
	hdr, err := h.Header.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	return containerRoot(hdr, ssz.HashTreeRootBytes96(h.Signature))
}

func (p ProposerSlashing) HashTreeRoot() (Root, error) {
	h1, err := p.SignedHeader1.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	h2, err := p.SignedHeader2.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	return containerRoot(h1, h2)
}

func (a AttestationData) HashTreeRoot() (Root, error) {
	src, err := a.Source.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	tgt, err := a.Target.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	return containerRoot(
		ssz.HashTreeRootUint64(a.Slot),
		ssz.HashTreeRootUint64(a.Index),
		a.BeaconBlockRoot,
		src,
		tgt,
	)
}

func (ia IndexedAttestation) HashTreeRoot() (Root, error) {
	data, err := ia.Data.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	packed := packUint64s(ia.AttestingIndices)
	indicesRoot := ssz.HashTreeRootBasicList(packed, len(ia.AttestingIndices), 8, maxValidatorsPerCommittee)
	return containerRoot(indicesRoot, data, ssz.HashTreeRootBytes96(ia.Signature))
}

func (as AttesterSlashing) HashTreeRoot() (Root, error) {
	a1, err := as.Attestation1.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	a2, err := as.Attestation2.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	return containerRoot(a1, a2)
}

func (a Attestation) HashTreeRoot(fork Fork) (Root, error) {
	data, err := a.Data.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	aggRoot := ssz.BitlistHashTreeRoot(a.AggregationBits, maxValidatorsPerCommittee)
	fields := []Root{aggRoot, data, ssz.HashTreeRootBytes96(a.Signature)}
	if fork.AtLeast(Electra) {
		fields = append(fields, ssz.BitvectorHashTreeRoot(a.CommitteeBits))
	}
	return containerRoot(fields...)
}

func (d DepositData) HashTreeRoot() (Root, error) {
	return containerRoot(
		ssz.HashTreeRootBytes48(d.Pubkey),
		d.WithdrawalCredentials,
		ssz.HashTreeRootUint64(d.Amount),
		ssz.HashTreeRootBytes96(d.Signature),
	)
}

func (d Deposit) HashTreeRoot() (Root, error) {
	data, err := d.Data.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	proofRoots := make([]Root, len(d.Proof))
	copy(proofRoots, d.Proof[:])
	return containerRoot(ssz.HashTreeRootVector(proofRoots), data)
}

func (v VoluntaryExit) HashTreeRoot() (Root, error) {
	return containerRoot(ssz.HashTreeRootUint64(v.Epoch), ssz.HashTreeRootUint64(v.ValidatorIndex))
}

func (sv SignedVoluntaryExit) HashTreeRoot() (Root, error) {
	exit, err := sv.Exit.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	return containerRoot(exit, ssz.HashTreeRootBytes96(sv.Signature))
}

func (c BLSToExecutionChange) HashTreeRoot() (Root, error) {
	return containerRoot(
		ssz.HashTreeRootUint64(c.ValidatorIndex),
		ssz.HashTreeRootBytes48(c.FromBlsPubkey),
		ssz.HashTreeRootAddress(c.ToExecutionAddress),
	)
}

func (sc SignedBLSToExecutionChange) HashTreeRoot() (Root, error) {
	change, err := sc.Change.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	return containerRoot(change, ssz.HashTreeRootBytes96(sc.Signature))
}

func (dr DepositRequest) HashTreeRoot() (Root, error) {
	return containerRoot(
		ssz.HashTreeRootBytes48(dr.Pubkey),
		dr.WithdrawalCredentials,
		ssz.HashTreeRootUint64(dr.Amount),
		ssz.HashTreeRootBytes96(dr.Signature),
		ssz.HashTreeRootUint64(dr.Index),
	)
}

func (wr WithdrawalRequest) HashTreeRoot() (Root, error) {
	return containerRoot(
		ssz.HashTreeRootAddress(wr.SourceAddress),
		ssz.HashTreeRootBytes48(wr.ValidatorPubkey),
		ssz.HashTreeRootUint64(wr.Amount),
	)
}

func (cr ConsolidationRequest) HashTreeRoot() (Root, error) {
	return containerRoot(
		ssz.HashTreeRootAddress(cr.SourceAddress),
		ssz.HashTreeRootBytes48(cr.SourcePubkey),
		ssz.HashTreeRootBytes48(cr.TargetPubkey),
	)
}

func (er ExecutionRequests) HashTreeRoot() (Root, error) {
	depRoots := make([]Root, len(er.Deposits))
	for i, d := range er.Deposits {
		r, err := d.HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		depRoots[i] = r
	}
	wRoots := make([]Root, len(er.Withdrawals))
	for i, w := range er.Withdrawals {
		r, err := w.HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		wRoots[i] = r
	}
	cRoots := make([]Root, len(er.Consolidations))
	for i, c := range er.Consolidations {
		r, err := c.HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		cRoots[i] = r
	}
	return containerRoot(
		ssz.HashTreeRootList(depRoots, maxDepositRequests),
		ssz.HashTreeRootList(wRoots, maxWithdrawalRequests),
		ssz.HashTreeRootList(cRoots, maxConsolidationReqs),
	)
}

// HashTreeRoot merkleizes BeaconBlockBody over exactly the fields present
// at fork, in spec field order (mirrors BeaconState.fieldRoots' fork-gated
// append pattern).
func (b *BeaconBlockBody) HashTreeRoot(fork Fork) (Root, error) {
	psRoots := make([]Root, len(b.ProposerSlashings))
	for i, p := range b.ProposerSlashings {
		r, err := p.HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		psRoots[i] = r
	}
	asRoots := make([]Root, len(b.AttesterSlashings))
	for i, a := range b.AttesterSlashings {
		r, err := a.HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		asRoots[i] = r
	}
	attRoots := make([]Root, len(b.Attestations))
	for i, a := range b.Attestations {
		r, err := a.HashTreeRoot(fork)
		if err != nil {
			return Root{}, err
		}
		attRoots[i] = r
	}
	depRoots := make([]Root, len(b.Deposits))
	for i, d := range b.Deposits {
		r, err := d.HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		depRoots[i] = r
	}
	veRoots := make([]Root, len(b.VoluntaryExits))
	for i, v := range b.VoluntaryExits {
		r, err := v.HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		veRoots[i] = r
	}
	eth1, err := b.Eth1Data.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}

	fields := []Root{
		ssz.HashTreeRootBytes96(b.RandaoReveal),
		eth1,
		b.Graffiti,
		ssz.HashTreeRootList(psRoots, maxProposerSlashings),
		ssz.HashTreeRootList(asRoots, maxAttesterSlashings),
		ssz.HashTreeRootList(attRoots, maxAttestations),
		ssz.HashTreeRootList(depRoots, maxDeposits),
		ssz.HashTreeRootList(veRoots, maxVoluntaryExits),
	}

	if fork.AtLeast(Altair) {
		var syncRoot Root
		if b.SyncAggregate != nil {
			syncRoot, err = containerRoot(
				ssz.BitvectorHashTreeRoot(b.SyncAggregate.SyncCommitteeBits),
				ssz.HashTreeRootBytes96(b.SyncAggregate.SyncCommitteeSignature),
			)
			if err != nil {
				return Root{}, err
			}
		}
		fields = append(fields, syncRoot)
	}
	if fork.AtLeast(Bellatrix) {
		var payloadRoot Root
		if b.ExecutionPayload != nil {
			header, err := CreatePayloadHeader(fork, b.ExecutionPayload)
			if err != nil {
				return Root{}, err
			}
			payloadRoot, err = header.HashTreeRoot(fork)
			if err != nil {
				return Root{}, err
			}
		}
		fields = append(fields, payloadRoot)
	}
	if fork.AtLeast(Capella) {
		bteRoots := make([]Root, len(b.BlsToExecutionChanges))
		for i, c := range b.BlsToExecutionChanges {
			r, err := c.HashTreeRoot()
			if err != nil {
				return Root{}, err
			}
			bteRoots[i] = r
		}
		fields = append(fields, ssz.HashTreeRootList(bteRoots, maxBlsToExecutionChgs))
	}
	if fork.AtLeast(Deneb) {
		commitRoots := make([]Root, len(b.BlobKZGCommitments))
		for i, c := range b.BlobKZGCommitments {
			commitRoots[i] = ssz.HashTreeRootBytes48(c)
		}
		fields = append(fields, ssz.HashTreeRootList(commitRoots, maxBlobCommitments))
	}
	if fork.AtLeast(Electra) {
		var reqRoot Root
		if b.ExecutionRequests != nil {
			reqRoot, err = b.ExecutionRequests.HashTreeRoot()
			if err != nil {
				return Root{}, err
			}
		}
		fields = append(fields, reqRoot)
	}
	return ssz.HashTreeRootContainer(fields), nil
}

// HashTreeRoot merkleizes the unsigned block container.
func (b *BeaconBlock) HashTreeRoot() (Root, error) {
	bodyRoot, err := b.Body.HashTreeRoot(b.ForkTag)
	if err != nil {
		return Root{}, err
	}
	return containerRoot(
		ssz.HashTreeRootUint64(b.Slot),
		ssz.HashTreeRootUint64(b.ProposerIndex),
		b.ParentRoot,
		b.StateRoot,
		bodyRoot,
	)
}

// ToHeader projects a block down to its BeaconBlockHeader, computing the
// body root needed by process_block_header.
func (b *BeaconBlock) ToHeader() (BeaconBlockHeader, error) {
	bodyRoot, err := b.Body.HashTreeRoot(b.ForkTag)
	if err != nil {
		return BeaconBlockHeader{}, err
	}
	return BeaconBlockHeader{
		Slot:          b.Slot,
		ProposerIndex: b.ProposerIndex,
		ParentRoot:    b.ParentRoot,
		StateRoot:     b.StateRoot,
		BodyRoot:      bodyRoot,
	}, nil
}
