package domain

import "fmt"

// DocumentType selects one of the printable documents a draft belongs to.
type DocumentType string

// Printable document types.
const (
	DocPrescription  DocumentType = "rx"
	DocClinicalSheet DocumentType = "fc"
	DocCertificate   DocumentType = "at"
	DocEstimate      DocumentType = "or"
)

// DocumentTypes lists every supported document type in display order.
func DocumentTypes() []DocumentType {
	return []DocumentType{DocPrescription, DocClinicalSheet, DocCertificate, DocEstimate}
}

// ParseDocumentType validates a raw document type tag.
func ParseDocumentType(raw string) (DocumentType, error) {
	for _, t := range DocumentTypes() {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", ValidationError{Entity: EntityDraft, Field: "type", Reason: fmt.Sprintf("unknown document type %q", raw)}
}

// Title returns the heading printed on the document.
func (t DocumentType) Title() string {
	switch t {
	case DocPrescription:
		return "Receituário"
	case DocClinicalSheet:
		return "Ficha Clínica"
	case DocCertificate:
		return "Atestado"
	case DocEstimate:
		return "Orçamento"
	default:
		return string(t)
	}
}

// Draft is the saved field set of one document type.
type Draft interface {
	DocumentType() DocumentType
}

// PrescriptionDraft holds the prescription form.
type PrescriptionDraft struct {
	Medications string `json:"meds"`
	Guidance    string `json:"orient"`
}

// ClinicalSheetDraft holds the clinical sheet form.
type ClinicalSheetDraft struct {
	Anamnesis   string `json:"anam"`
	Examination string `json:"exame"`
	Diagnosis   string `json:"dx"`
	Conduct     string `json:"cond"`
}

// CertificateDraft holds the attendance certificate form.
type CertificateDraft struct {
	Days string `json:"dias"`
	CID  string `json:"cid"`
	Text string `json:"texto"`
}

// EstimateDraft holds the treatment estimate form.
type EstimateDraft struct {
	Items string `json:"itens"`
	Notes string `json:"obs"`
}

func (PrescriptionDraft) DocumentType() DocumentType  { return DocPrescription }
func (ClinicalSheetDraft) DocumentType() DocumentType { return DocClinicalSheet }
func (CertificateDraft) DocumentType() DocumentType   { return DocCertificate }
func (EstimateDraft) DocumentType() DocumentType      { return DocEstimate }

// Drafts keeps one optional slot per document type. A nil slot means the type
// was never saved.
type Drafts struct {
	Prescription  *PrescriptionDraft  `json:"rx,omitempty"`
	ClinicalSheet *ClinicalSheetDraft `json:"fc,omitempty"`
	Certificate   *CertificateDraft   `json:"at,omitempty"`
	Estimate      *EstimateDraft      `json:"or,omitempty"`
}

// Get returns the saved draft for t, or an empty draft of that type.
func (d Drafts) Get(t DocumentType) (Draft, bool) {
	switch t {
	case DocPrescription:
		if d.Prescription != nil {
			return *d.Prescription, true
		}
		return PrescriptionDraft{}, false
	case DocClinicalSheet:
		if d.ClinicalSheet != nil {
			return *d.ClinicalSheet, true
		}
		return ClinicalSheetDraft{}, false
	case DocCertificate:
		if d.Certificate != nil {
			return *d.Certificate, true
		}
		return CertificateDraft{}, false
	case DocEstimate:
		if d.Estimate != nil {
			return *d.Estimate, true
		}
		return EstimateDraft{}, false
	}
	return nil, false
}

// Set overwrites the whole slot for the draft's document type.
func (d *Drafts) Set(draft Draft) error {
	switch v := draft.(type) {
	case PrescriptionDraft:
		d.Prescription = &v
	case *PrescriptionDraft:
		cp := *v
		d.Prescription = &cp
	case ClinicalSheetDraft:
		d.ClinicalSheet = &v
	case *ClinicalSheetDraft:
		cp := *v
		d.ClinicalSheet = &cp
	case CertificateDraft:
		d.Certificate = &v
	case *CertificateDraft:
		cp := *v
		d.Certificate = &cp
	case EstimateDraft:
		d.Estimate = &v
	case *EstimateDraft:
		cp := *v
		d.Estimate = &cp
	default:
		return ValidationError{Entity: EntityDraft, Field: "type", Reason: fmt.Sprintf("unsupported draft %T", draft)}
	}
	return nil
}

// Clone returns a copy that shares no pointers with d.
func (d Drafts) Clone() Drafts {
	var out Drafts
	if d.Prescription != nil {
		v := *d.Prescription
		out.Prescription = &v
	}
	if d.ClinicalSheet != nil {
		v := *d.ClinicalSheet
		out.ClinicalSheet = &v
	}
	if d.Certificate != nil {
		v := *d.Certificate
		out.Certificate = &v
	}
	if d.Estimate != nil {
		v := *d.Estimate
		out.Estimate = &v
	}
	return out
}
