package services

import "strings"

// TypeClass groups engine-specific data types into families that can be
// compared across postgres, sqlserver and mysql.
type TypeClass string

const (
	TypeClassInteger  TypeClass = "integer"
	TypeClassNumeric  TypeClass = "numeric"
	TypeClassUUID     TypeClass = "uuid"
	TypeClassText     TypeClass = "text"
	TypeClassBoolean  TypeClass = "boolean"
	TypeClassTemporal TypeClass = "temporal"
	TypeClassJSON     TypeClass = "json"
	TypeClassBinary   TypeClass = "binary"
	TypeClassOther    TypeClass = "other"
)

var typeClassByName = map[string]TypeClass{
	"smallint": TypeClassInteger, "integer": TypeClassInteger, "int": TypeClassInteger,
	"int2": TypeClassInteger, "int4": TypeClassInteger, "int8": TypeClassInteger,
	"bigint": TypeClassInteger, "tinyint": TypeClassInteger, "mediumint": TypeClassInteger,
	"serial": TypeClassInteger, "bigserial": TypeClassInteger, "smallserial": TypeClassInteger,

	"numeric": TypeClassNumeric, "decimal": TypeClassNumeric, "real": TypeClassNumeric,
	"double precision": TypeClassNumeric, "double": TypeClassNumeric, "float": TypeClassNumeric,
	"float4": TypeClassNumeric, "float8": TypeClassNumeric, "money": TypeClassNumeric,
	"smallmoney": TypeClassNumeric,

	"uuid": TypeClassUUID, "uniqueidentifier": TypeClassUUID,

	"text": TypeClassText, "varchar": TypeClassText, "character varying": TypeClassText,
	"char": TypeClassText, "character": TypeClassText, "bpchar": TypeClassText,
	"nvarchar": TypeClassText, "nchar": TypeClassText, "ntext": TypeClassText,
	"citext": TypeClassText, "tinytext": TypeClassText, "mediumtext": TypeClassText,
	"longtext": TypeClassText, "name": TypeClassText, "sysname": TypeClassText,
	"enum": TypeClassText,

	"boolean": TypeClassBoolean, "bool": TypeClassBoolean, "bit": TypeClassBoolean,

	"json": TypeClassJSON, "jsonb": TypeClassJSON,

	"bytea": TypeClassBinary, "binary": TypeClassBinary, "varbinary": TypeClassBinary,
	"blob": TypeClassBinary, "tinyblob": TypeClassBinary, "mediumblob": TypeClassBinary,
	"longblob": TypeClassBinary, "image": TypeClassBinary,
}

// ClassifyType maps a catalog data type to its TypeClass.
// Length, precision and modifiers such as "unsigned" are ignored.
func ClassifyType(dataType string) TypeClass {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " unsigned")
	if c, ok := typeClassByName[t]; ok {
		return c
	}
	if strings.Contains(t, "time") || strings.Contains(t, "date") ||
		strings.HasPrefix(t, "interval") || t == "year" {
		return TypeClassTemporal
	}
	if first, _, ok := strings.Cut(t, " "); ok {
		if c, ok := typeClassByName[first]; ok {
			return c
		}
	}
	return TypeClassOther
}

// Joinable reports whether values of this class can be used as join keys.
func (c TypeClass) Joinable() bool {
	switch c {
	case TypeClassInteger, TypeClassNumeric, TypeClassUUID, TypeClassText:
		return true
	}
	return false
}

// Numeric reports whether numeric stats apply to the class.
func (c TypeClass) Numeric() bool {
	return c == TypeClassInteger || c == TypeClassNumeric
}

// joinCompatible reports whether two columns may be joined.
func joinCompatible(a, b string) bool {
	ca, cb := ClassifyType(a), ClassifyType(b)
	return ca == cb && ca.Joinable()
}
