// Package reconcile merges normalized source records into the canonical
// candidate store. Repeated runs over the same records change nothing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/normalize"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

const entityCandidate = "candidate"

var (
	ErrMissingName        = errors.New("record has no name")
	ErrInvalidOffice      = errors.New("unknown office")
	ErrUnknownParty       = errors.New("party not found")
	ErrDistrictRequired   = errors.New("office requires a district")
	ErrAmbiguousCandidate = errors.New("name matches more than one person")
)

// Result counts the outcome of a reconcile batch. Errors holds one entry per
// record that could not be applied; the rest of the batch is unaffected.
type Result struct {
	Created int
	Updated int
	Skipped int
	Errors  []error
}

func (r *Result) fail(ref string, err error) {
	r.Errors = append(r.Errors, fmt.Errorf("%s: %w", ref, err))
}

// Reconciler applies source records to the store.
type Reconciler struct {
	db     *database.DB
	log    logger.Logger
	source string
}

// New creates a reconciler recording changes under the registry source.
func New(db *database.DB, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{db: db, log: log, source: string(sources.SourceRegistry)}
}

// candidateKey identifies a candidacy: the same person may run for more than
// one office.
func candidateKey(office database.Office, value string) string {
	return string(office) + "|" + value
}

// index is the in-memory view of the store used for one batch.
type index struct {
	byNationalID map[string]int64
	byName       map[string]int64
	slugs        map[string]bool
	parties      []database.Party
	districts    map[string]int64
	fingerprints map[int64]string
}

func (r *Reconciler) loadIndex(ctx context.Context) (*index, error) {
	candidates, err := r.db.ListCandidates(ctx, database.CandidateFilter{})
	if err != nil {
		return nil, err
	}
	parties, err := r.db.ListParties(ctx)
	if err != nil {
		return nil, err
	}
	districts, err := r.db.ListDistricts(ctx)
	if err != nil {
		return nil, err
	}
	fps, err := r.db.ListFingerprints(ctx, entityCandidate, r.source)
	if err != nil {
		return nil, err
	}

	idx := &index{
		byNationalID: make(map[string]int64),
		byName:       make(map[string]int64, len(candidates)),
		slugs:        make(map[string]bool, len(candidates)),
		parties:      parties,
		districts:    make(map[string]int64, len(districts)),
		fingerprints: make(map[int64]string, len(fps)),
	}
	for _, c := range candidates {
		nid := ""
		if c.NationalID != nil {
			nid = *c.NationalID
		}
		idx.add(c.ID, c.Slug, c.Office, c.FullName, nid)
	}
	for _, d := range districts {
		idx.districts[normalize.Fold(d.Name)] = d.ID
	}
	for _, fp := range fps {
		idx.fingerprints[fp.EntityID] = fp.ContentHash
	}
	return idx, nil
}

func (idx *index) add(id int64, slug string, office database.Office, name, nationalID string) {
	idx.byName[candidateKey(office, normalize.Fold(name))] = id
	if nationalID != "" {
		idx.byNationalID[candidateKey(office, nationalID)] = id
	}
	if slug != "" {
		idx.slugs[slug] = true
	}
}

// match finds the candidacy of rec by national ID, then by folded name.
func (idx *index) match(rec *sources.RegistryRecord) (int64, bool) {
	if rec.NationalID != "" {
		if id, ok := idx.byNationalID[candidateKey(rec.Office, rec.NationalID)]; ok {
			return id, true
		}
	}
	id, ok := idx.byName[candidateKey(rec.Office, normalize.Fold(rec.FullName))]
	return id, ok
}

// uniqueSlug derives a slug from the name, suffixing the office and then a
// counter on collision.
func (idx *index) uniqueSlug(name string, office database.Office) string {
	base := normalize.Slug(name)
	if !idx.slugs[base] {
		return base
	}
	withOffice := base + "-" + string(office)
	if !idx.slugs[withOffice] {
		return withOffice
	}
	for n := 2; ; n++ {
		s := withOffice + "-" + strconv.Itoa(n)
		if !idx.slugs[s] {
			return s
		}
	}
}

// resolveParty matches a party by folded name or short name, exactly first
// and then by containment in either direction.
func resolveParty(parties []database.Party, name string) (int64, bool) {
	want := normalize.Fold(name)
	if want == "" {
		return 0, false
	}
	for _, p := range parties {
		if normalize.Fold(p.Name) == want || (p.ShortName != nil && normalize.Fold(*p.ShortName) == want) {
			return p.ID, true
		}
	}

	var best int64
	bestLen := 0
	for _, p := range parties {
		folded := normalize.Fold(p.Name)
		if len(folded) < 3 || len(want) < 3 {
			continue
		}
		if strings.Contains(folded, want) || strings.Contains(want, folded) {
			if overlap := min(len(folded), len(want)); overlap > bestLen {
				best, bestLen = p.ID, overlap
			}
		}
	}
	return best, bestLen > 0
}

// semanticRecord is the part of a registry record whose change means the
// candidate changed. Fetch time and source URL are excluded.
type semanticRecord struct {
	FullName       string                `json:"full_name"`
	Office         database.Office       `json:"office"`
	Party          string                `json:"party"`
	District       string                `json:"district"`
	NationalID     string                `json:"national_id"`
	BirthDate      string                `json:"birth_date"`
	PhotoURL       string                `json:"photo_url"`
	Education      []database.Education  `json:"education"`
	Experience     []database.Experience `json:"experience"`
	Trajectory     []database.Trajectory `json:"trajectory"`
	Assets         *database.Assets      `json:"assets"`
	PenalSentences []database.Sentence   `json:"penal_sentences"`
	CivilSentences []database.Sentence   `json:"civil_sentences"`
}

// Fingerprint returns the content hash of the semantic fields of rec.
func Fingerprint(rec *sources.RegistryRecord) (string, error) {
	return normalize.Hash(semanticRecord{
		FullName:       strings.TrimSpace(rec.FullName),
		Office:         rec.Office,
		Party:          normalize.Fold(rec.PartyName),
		District:       normalize.Fold(rec.DistrictName),
		NationalID:     rec.NationalID,
		BirthDate:      rec.BirthDate,
		PhotoURL:       rec.PhotoURL,
		Education:      rec.Education,
		Experience:     rec.Experience,
		Trajectory:     rec.Trajectory,
		Assets:         rec.Assets,
		PenalSentences: rec.PenalSentences,
		CivilSentences: rec.CivilSentences,
	})
}

// Reconcile applies registry records. It returns an error only when the
// store cannot be read; per-record failures are collected in the result.
func (r *Reconciler) Reconcile(ctx context.Context, records []*sources.RegistryRecord) (*Result, error) {
	idx, err := r.loadIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading reconcile index: %w", err)
	}

	result := &Result{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.apply(ctx, idx, rec, result); err != nil {
			result.fail(recordRef(rec), err)
		}
	}

	r.log.Info("Reconciled registry records",
		logger.Int("records", len(records)),
		logger.Int("created", result.Created),
		logger.Int("updated", result.Updated),
		logger.Int("skipped", result.Skipped),
		logger.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func recordRef(rec *sources.RegistryRecord) string {
	if rec.ExternalID != "" {
		return fmt.Sprintf("%s (%s)", rec.FullName, rec.ExternalID)
	}
	return rec.FullName
}

func (r *Reconciler) apply(ctx context.Context, idx *index, rec *sources.RegistryRecord, result *Result) error {
	if strings.TrimSpace(rec.FullName) == "" {
		return ErrMissingName
	}
	if !rec.Office.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOffice, rec.Office)
	}
	partyID, ok := resolveParty(idx.parties, rec.PartyName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParty, rec.PartyName)
	}
	districtID, err := r.resolveDistrict(ctx, idx, rec)
	if err != nil {
		return err
	}
	hash, err := Fingerprint(rec)
	if err != nil {
		return fmt.Errorf("hashing record: %w", err)
	}

	fields := database.CandidateFields{
		FullName:       strings.TrimSpace(rec.FullName),
		Office:         rec.Office,
		PartyID:        partyID,
		DistrictID:     districtID,
		NationalID:     optional(rec.NationalID),
		BirthDate:      optional(rec.BirthDate),
		PhotoURL:       optional(rec.PhotoURL),
		Education:      rec.Education,
		Experience:     rec.Experience,
		Trajectory:     rec.Trajectory,
		Assets:         rec.Assets,
		PenalSentences: rec.PenalSentences,
		CivilSentences: rec.CivilSentences,
		IsVerified:     true,
		Source:         r.source,
	}

	id, found := idx.match(rec)
	switch {
	case found && idx.fingerprints[id] == hash:
		if err := r.db.TouchFingerprint(ctx, entityCandidate, id, r.source); err != nil {
			return err
		}
		result.Skipped++
		return nil

	case found:
		if err := r.db.MergeCandidate(ctx, id, fields); err != nil {
			return err
		}
		if err := r.db.UpsertFingerprint(ctx, entityCandidate, id, r.source, hash); err != nil {
			return err
		}
		idx.add(id, "", rec.Office, rec.FullName, rec.NationalID)
		result.Updated++

	default:
		slug := idx.uniqueSlug(rec.FullName, rec.Office)
		id, err = r.db.CreateCandidate(ctx, slug, fields)
		if err != nil {
			return err
		}
		if err := r.db.UpsertFingerprint(ctx, entityCandidate, id, r.source, hash); err != nil {
			return err
		}
		idx.add(id, slug, rec.Office, rec.FullName, rec.NationalID)
		result.Created++
	}
	idx.fingerprints[id] = hash

	return r.declaredSentenceFlags(ctx, id, rec)
}

func (r *Reconciler) resolveDistrict(ctx context.Context, idx *index, rec *sources.RegistryRecord) (*int64, error) {
	if !rec.Office.RequiresDistrict() {
		return nil, nil
	}
	name := strings.TrimSpace(rec.DistrictName)
	key := normalize.Fold(name)
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrDistrictRequired, rec.Office)
	}
	if id, ok := idx.districts[key]; ok {
		return &id, nil
	}
	id, err := r.db.EnsureDistrict(ctx, name)
	if err != nil {
		return nil, err
	}
	idx.districts[key] = id
	return &id, nil
}

// declaredSentenceFlags records the rulings a candidate declared in the
// registry as verified flags.
func (r *Reconciler) declaredSentenceFlags(ctx context.Context, candidateID int64, rec *sources.RegistryRecord) error {
	for _, s := range rec.PenalSentences {
		if _, err := r.db.InsertFlag(ctx, sentenceFlag(candidateID, sources.SentencePenal, s, r.source, rec.SourceURL)); err != nil {
			return err
		}
	}
	for _, s := range rec.CivilSentences {
		if _, err := r.db.InsertFlag(ctx, sentenceFlag(candidateID, sources.SentenceCivil, s, r.source, rec.SourceURL)); err != nil {
			return err
		}
	}
	return nil
}

func sentenceFlag(candidateID int64, kind sources.SentenceKind, s database.Sentence, source, evidence string) database.FlagInput {
	flag := database.FlagInput{
		CandidateID: candidateID,
		Type:        database.FlagPenalSentence,
		Severity:    database.SeverityRed,
		Source:      source,
		EvidenceURL: evidence,
		IsVerified:  true,
	}
	label := "Sentencia penal"
	if kind == sources.SentenceCivil {
		flag.Type = database.FlagCivilSentence
		flag.Severity = database.SeverityAmber
		label = "Sentencia civil"
	}

	title := label
	if s.CaseNumber != "" {
		title += " " + s.CaseNumber
	}
	if s.Offense != "" {
		title += ": " + s.Offense
	}
	flag.Title = title

	var details []string
	for _, d := range []string{s.Ruling, s.Court, s.Status, s.Date} {
		if d = strings.TrimSpace(d); d != "" {
			details = append(details, d)
		}
	}
	flag.Description = strings.Join(details, "; ")
	return flag
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
