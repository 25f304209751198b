package controller

import "github.com/cipherswarm/cipherswarmd/pkg/types"

// ResourceRef renders an object-storage-backed resource (word/rule/mask
// list) as the agent expects it: present fields, or an explicit null
// represented here as a nil pointer, never an omitted field.
type ResourceRef struct {
	ID          string
	DownloadURL string
	Checksum    string
	Filename    string
}

// AttackDescriptor is the agent-facing shape for a given Attack, as
// specified in §6: attack parameters, resource references (each
// potentially nil), the hashcat mode number, and URLs for the dynamic
// uncracked-hash list and attack status.
type AttackDescriptor struct {
	AttackID   string
	AttackMode types.AttackMode
	Mask       string

	IncrementMin int
	IncrementMax int

	CustomCharset1 string
	CustomCharset2 string
	CustomCharset3 string
	CustomCharset4 string

	MarkovEnabled    bool
	OptimizedKernels bool
	WorkloadProfile  types.WorkloadProfile

	LeftRule  *ResourceRef
	RightRule *ResourceRef

	WordList *ResourceRef
	RuleList *ResourceRef
	MaskList *ResourceRef

	HashcatMode int

	HashListURL      string
	HashListChecksum string

	StatusURL string
}

// ResourceResolver looks up the download metadata for an object-storage
// reference id; it is the seam to the object storage collaborator (§6),
// out of this core's scope.
type ResourceResolver interface {
	Resolve(id string) (*ResourceRef, error)
}

// RenderAttackDescriptor is a pure function building the agent-facing
// descriptor for attack, given resolved resource references and the
// two dynamic URLs a transport layer computes.
func RenderAttackDescriptor(attack *types.Attack, hashcatMode int, resolver ResourceResolver, hashListURL, hashListChecksum, statusURL string) (*AttackDescriptor, error) {
	d := &AttackDescriptor{
		AttackID:         attack.ID,
		AttackMode:       attack.AttackMode,
		Mask:             attack.Mask,
		IncrementMin:     attack.IncrementMin,
		IncrementMax:     attack.IncrementMax,
		CustomCharset1:   attack.CustomCharset1,
		CustomCharset2:   attack.CustomCharset2,
		CustomCharset3:   attack.CustomCharset3,
		CustomCharset4:   attack.CustomCharset4,
		MarkovEnabled:    attack.MarkovEnabled,
		OptimizedKernels: attack.OptimizedKernels,
		WorkloadProfile:  attack.WorkloadProfile,
		HashcatMode:      hashcatMode,
		HashListURL:      hashListURL,
		HashListChecksum: hashListChecksum,
		StatusURL:        statusURL,
	}

	var err error
	if d.LeftRule, err = resolveOptional(resolver, attack.LeftRuleListID); err != nil {
		return nil, err
	}
	if d.RightRule, err = resolveOptional(resolver, attack.RightRuleListID); err != nil {
		return nil, err
	}
	if d.WordList, err = resolveOptional(resolver, attack.WordListID); err != nil {
		return nil, err
	}
	if d.RuleList, err = resolveOptional(resolver, attack.RuleListID); err != nil {
		return nil, err
	}
	if d.MaskList, err = resolveOptional(resolver, attack.MaskListID); err != nil {
		return nil, err
	}
	return d, nil
}

func resolveOptional(resolver ResourceResolver, id *string) (*ResourceRef, error) {
	if id == nil {
		return nil, nil
	}
	return resolver.Resolve(*id)
}
