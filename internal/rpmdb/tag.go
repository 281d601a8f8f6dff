package rpmdb

// Tag is the term for the key in the key-value pairs in a [Header].
//
// The numeric values match rpm's own rpmtag.h; only the subset this
// package needs to read package and file metadata is enumerated here.
type Tag int32

// Region and signature tags.
const (
	TagHeaderImage      Tag = 61
	TagHeaderSignatures Tag = 62
	TagHeaderImmutable  Tag = 63
	TagHeaderI18nTable  Tag = 100
)

// General package tags.
const (
	TagName       Tag = 1000
	TagVersion    Tag = 1001
	TagRelease    Tag = 1002
	TagEpoch      Tag = 1003
	TagArch       Tag = 1022
	TagFileSizes  Tag = 1028
	TagFileModes  Tag = 1030
	TagFileLinkTo Tag = 1036
	TagSourceRPM  Tag = 1044

	TagDirindexes        Tag = 1116
	TagBasenames         Tag = 1117
	TagDirnames          Tag = 1118
	TagPayloadFormat     Tag = 1124
	TagPayloadCompressor Tag = 1125
)

// Extension tags, block two.
const (
	TagFilenames       Tag = 5000 // rpm4-style compatibility tag
	TagModularityLabel Tag = 5096
)

// Kind is the type of data stored for a given [Tag].
type Kind uint32

// Tag data types, matching rpm's on-disk header format.
const (
	TypeNull Kind = iota
	TypeChar
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeString
	TypeBin
	TypeStringArray
	TypeI18nString

	TypeRegionTag = TypeBin
	TypeMin       = TypeChar
	TypeMax       = TypeI18nString
)

func (t Kind) alignment() int32 {
	switch t {
	case TypeNull, TypeChar, TypeInt8, TypeString, TypeBin, TypeStringArray, TypeI18nString:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32:
		return 4
	case TypeInt64:
		return 8
	default:
	}
	panic("rpmdb: unaligned type")
}
