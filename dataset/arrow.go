package dataset

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hupe1980/vecforge/errs"
)

const (
	arrowIDColumn     = "id"
	arrowVectorColumn = "vector"
)

// ArrowSchema returns the schema of a dataset file: an int64 id column and a
// fixed-size float32 list column of width dim.
func ArrowSchema(dim int) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: arrowIDColumn, Type: arrow.PrimitiveTypes.Int64},
		{Name: arrowVectorColumn, Type: arrow.FixedSizeListOf(int32(dim), arrow.PrimitiveTypes.Float32)},
	}, nil)
}

// WriteArrow writes d as an Arrow IPC file with a single record batch.
func WriteArrow(w io.Writer, d *Dataset) error {
	alloc := memory.NewGoAllocator()
	schema := ArrowSchema(d.dim)

	rb := array.NewRecordBuilder(alloc, schema)
	defer rb.Release()

	idBuilder := rb.Field(0).(*array.Int64Builder)
	listBuilder := rb.Field(1).(*array.FixedSizeListBuilder)
	valueBuilder := listBuilder.ValueBuilder().(*array.Float32Builder)

	idBuilder.AppendValues(d.IDs(), nil)
	for i := 0; i < d.Len(); i++ {
		listBuilder.Append(true)
		valueBuilder.AppendValues(d.Row(i), nil)
	}

	record := rb.NewRecord()
	defer record.Release()

	writer, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(alloc))
	if err != nil {
		return errs.IO("dataset.write_arrow", "", err)
	}
	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return errs.IO("dataset.write_arrow", "", err)
	}
	return errs.IO("dataset.write_arrow", "", writer.Close())
}

// ReadArrow reads every record batch of an Arrow IPC file written by WriteArrow.
func ReadArrow(r ipc.ReadAtSeeker) (*Dataset, error) {
	alloc := memory.NewGoAllocator()
	reader, err := ipc.NewFileReader(r, ipc.WithAllocator(alloc))
	if err != nil {
		return nil, errs.IO("dataset.read_arrow", "", err)
	}
	defer reader.Close()

	schema := reader.Schema()
	idIdx := schema.FieldIndices(arrowIDColumn)
	vecIdx := schema.FieldIndices(arrowVectorColumn)
	if len(idIdx) != 1 || len(vecIdx) != 1 {
		return nil, errs.Configuration("dataset.read_arrow", "schema", "want columns %q and %q, got %s", arrowIDColumn, arrowVectorColumn, schema)
	}
	listType, ok := schema.Field(vecIdx[0]).Type.(*arrow.FixedSizeListType)
	if !ok || listType.Elem().ID() != arrow.FLOAT32 {
		return nil, errs.Configuration("dataset.read_arrow", "schema", "column %q must be fixed_size_list<float32>", arrowVectorColumn)
	}
	dim := int(listType.Len())

	var (
		vectors []float32
		ids     []int64
	)
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.Record(i)
		if err != nil {
			return nil, errs.IO("dataset.read_arrow", "", err)
		}

		idCol, ok := record.Column(idIdx[0]).(*array.Int64)
		if !ok {
			return nil, errs.Configuration("dataset.read_arrow", "schema", "column %q must be int64", arrowIDColumn)
		}
		listCol := record.Column(vecIdx[0]).(*array.FixedSizeList)
		values := listCol.ListValues().(*array.Float32).Float32Values()

		for j := 0; j < int(record.NumRows()); j++ {
			if listCol.IsNull(j) || idCol.IsNull(j) {
				return nil, errs.Configuration("dataset.read_arrow", "rows", "row %d has a null id or vector", j)
			}
			start := (listCol.Offset() + j) * dim
			vectors = append(vectors, values[start:start+dim]...)
			ids = append(ids, idCol.Value(j))
		}
	}

	if ids == nil {
		ids = []int64{}
	}
	return New(dim, vectors, ids)
}
