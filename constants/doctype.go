package constants

// DocumentType is a Canadian tax-slip code detected from a filename, or
// TypeUnknown when no rule matches.
type DocumentType string

const (
	TypeT5008    DocumentType = "T5008"
	TypeT5013    DocumentType = "T5013"
	TypeT4A      DocumentType = "T4A"
	TypeT4E      DocumentType = "T4E"
	TypeT4       DocumentType = "T4"
	TypeT5       DocumentType = "T5"
	TypeT3       DocumentType = "T3"
	TypeT2202A   DocumentType = "T2202A"
	TypeT2202    DocumentType = "T2202"
	TypeRC62     DocumentType = "RC62"
	TypeRRSP     DocumentType = "RRSP"
	TypeRRIF     DocumentType = "RRIF"
	TypeTFSA     DocumentType = "TFSA"
	TypeNR4      DocumentType = "NR4"
	TypeT1135    DocumentType = "T1135"
	TypeDonation DocumentType = "Donation Receipt"
	TypeUnknown  DocumentType = ""
)

// TypePrecedence lists slip codes most-specific first. Order matters: T5008
// must match before T5, T4A before T4, T2202A before T2202.
var TypePrecedence = []DocumentType{
	TypeT5008, TypeT5013, TypeT4A, TypeT4E, TypeT4, TypeT5, TypeT3,
	TypeT2202A, TypeT2202, TypeRC62, TypeRRSP, TypeRRIF, TypeTFSA,
	TypeNR4, TypeT1135,
}
