package sql

import (
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/inflect"

	"github.com/syssam/factory"
	"github.com/syssam/factory/dialect"
)

// column maps a struct field to a table column.
type column struct {
	name  string
	index []int
	pk    bool
}

var (
	columnCache sync.Map // reflect.Type -> []column
	valuerType  = reflect.TypeFor[driver.Valuer]()
	timeType    = reflect.TypeFor[time.Time]()
)

// TableName returns the table an entity is inserted into: the result of its
// TableName method, or the pluralized snake case of its type name.
func TableName(entity any) string {
	if t, ok := entity.(factory.Tabler); ok {
		return t.TableName()
	}
	return inflect.Pluralize(inflect.Underscore(factory.TypeName(entity)))
}

// columns returns the insertable columns of struct type t. A field is a
// column if it carries a `db` tag, or if its type is a scalar, a time, a byte
// slice or a driver.Valuer. Fields tagged `db:"-"` are skipped. Fields
// promoted from embedded structs are columns; fields reached through an
// embedded pointer are not.
func columns(t reflect.Type) []column {
	if cs, ok := columnCache.Load(t); ok {
		return cs.([]column)
	}
	pk, hasPK := factory.PrimaryKeyField(t)
	var cs []column
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous || throughPointer(t, f.Index) {
			continue
		}
		tag, tagged := f.Tag.Lookup("db")
		name, _, _ := strings.Cut(tag, ",")
		switch {
		case name == "-":
			continue
		case tagged && name != "":
		case !columnType(f.Type):
			continue
		default:
			name = inflect.Underscore(f.Name)
		}
		cs = append(cs, column{
			name:  name,
			index: f.Index,
			pk:    hasPK && reflect.DeepEqual(pk.Index, f.Index),
		})
	}
	columnCache.Store(t, cs)
	return cs
}

func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}

func columnType(t reflect.Type) bool {
	if t.Implements(valuerType) || t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String, reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	case reflect.Pointer:
		return columnType(t.Elem())
	}
	return false
}

// Builder writes dialect specific INSERT statements.
type Builder struct {
	dialect string
}

// Dialect returns a Builder for the given dialect.
func Dialect(name string) Builder {
	return Builder{dialect: name}
}

// Quote quotes an identifier.
func (b Builder) Quote(ident string) string {
	if b.dialect == dialect.MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return strconv.Quote(ident)
}

// Insert returns an INSERT statement for table and columns. If returning is
// set and the dialect is Postgres, the statement returns that column.
func (b Builder) Insert(table string, cols []string, returning string) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.Quote(table))
	switch {
	case len(cols) > 0:
		sb.WriteString(" (")
		for i, c := range cols {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.Quote(c))
		}
		sb.WriteString(") VALUES (")
		for i := range cols {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.placeholder(i + 1))
		}
		sb.WriteString(")")
	case b.dialect == dialect.MySQL:
		sb.WriteString(" () VALUES ()")
	default:
		sb.WriteString(" DEFAULT VALUES")
	}
	if returning != "" && b.dialect == dialect.Postgres {
		sb.WriteString(" RETURNING ")
		sb.WriteString(b.Quote(returning))
	}
	return sb.String()
}

func (b Builder) placeholder(n int) string {
	if b.dialect == dialect.Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
