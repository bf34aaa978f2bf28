package store

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// RecordTypeRepo is the repository for RecordType aggregates.
type RecordTypeRepo struct {
	pool *pgxpool.Pool
}

// ValidateSchema checks that raw is well-formed JSON and a valid JSON
// Schema document, per §6's PATCH semantics (invalid JSON -> 422,
// JSON that isn't a valid schema -> 422). Substitutes for the runtime
// reflection the original used, per SPEC_FULL §9 design notes.
func ValidateSchema(raw []byte) (*jsonschema.Schema, error) {
	var sch jsonschema.Schema
	if err := json.Unmarshal(raw, &sch); err != nil {
		return nil, clarineterr.Validationf("invalid JSON for data_schema: %v", err)
	}
	if _, err := sch.Resolve(nil); err != nil {
		return nil, clarineterr.Validationf("not a valid JSON Schema: %v", err)
	}
	return &sch, nil
}

// ValidatePayload validates data against a RecordType's data_schema, if
// one is configured. A RecordType without a schema accepts any JSON.
func ValidatePayload(rt *RecordType, data []byte) error {
	if len(rt.DataSchema) == 0 {
		return nil
	}
	sch, err := ValidateSchema(rt.DataSchema)
	if err != nil {
		return err
	}
	resolved, err := sch.Resolve(nil)
	if err != nil {
		return clarineterr.Validationf("not a valid JSON Schema: %v", err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return clarineterr.Validationf("invalid JSON payload: %v", err)
	}
	if err := resolved.Validate(value); err != nil {
		return clarineterr.Validationf("payload does not match data_schema: %v", err)
	}
	return nil
}

// Create inserts a new record type.
func (r *RecordTypeRepo) Create(ctx context.Context, rt *RecordType) (*RecordType, error) {
	if len(rt.DataSchema) > 0 {
		if _, err := ValidateSchema(rt.DataSchema); err != nil {
			return nil, err
		}
	}
	inputFiles, _ := json.Marshal(rt.InputFiles)
	outputFiles, _ := json.Marshal(rt.OutputFiles)
	scriptArgs, _ := json.Marshal(rt.SlicerScriptArgs)
	validatorArgs, _ := json.Marshal(rt.SlicerResultValidatorArg)

	_, err := r.pool.Exec(ctx,
		`INSERT INTO recordtype
			(name, description, label, data_schema, level, role, min_users, max_users,
			 input_files, output_files, slicer_script, slicer_script_args, slicer_result_validator_args)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rt.Name, rt.Description, rt.Label, nullableJSON(rt.DataSchema), rt.Level, rt.Role,
		rt.MinUsers, rt.MaxUsers, inputFiles, outputFiles, rt.SlicerScript, scriptArgs, validatorArgs,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	return rt, nil
}

// Get fetches a record type by name.
func (r *RecordTypeRepo) Get(ctx context.Context, name string) (*RecordType, error) {
	rt := &RecordType{}
	var inputFiles, outputFiles, scriptArgs, validatorArgs []byte
	err := r.pool.QueryRow(ctx,
		`SELECT name, description, label, data_schema, level, role, min_users, max_users,
		        input_files, output_files, slicer_script, slicer_script_args, slicer_result_validator_args
		 FROM recordtype WHERE name = $1`, name,
	).Scan(&rt.Name, &rt.Description, &rt.Label, &rt.DataSchema, &rt.Level, &rt.Role,
		&rt.MinUsers, &rt.MaxUsers, &inputFiles, &outputFiles, &rt.SlicerScript, &scriptArgs, &validatorArgs)
	if err != nil {
		return nil, translate(err, "record type "+name+" not found")
	}
	_ = json.Unmarshal(inputFiles, &rt.InputFiles)
	_ = json.Unmarshal(outputFiles, &rt.OutputFiles)
	_ = json.Unmarshal(scriptArgs, &rt.SlicerScriptArgs)
	_ = json.Unmarshal(validatorArgs, &rt.SlicerResultValidatorArg)
	return rt, nil
}

// Update overwrites an existing record type's mutable fields.
func (r *RecordTypeRepo) Update(ctx context.Context, rt *RecordType) (*RecordType, error) {
	if len(rt.DataSchema) > 0 {
		if _, err := ValidateSchema(rt.DataSchema); err != nil {
			return nil, err
		}
	}
	inputFiles, _ := json.Marshal(rt.InputFiles)
	outputFiles, _ := json.Marshal(rt.OutputFiles)
	scriptArgs, _ := json.Marshal(rt.SlicerScriptArgs)
	validatorArgs, _ := json.Marshal(rt.SlicerResultValidatorArg)

	tag, err := r.pool.Exec(ctx,
		`UPDATE recordtype SET
			description = $2, label = $3, data_schema = $4, level = $5, role = $6,
			min_users = $7, max_users = $8, input_files = $9, output_files = $10,
			slicer_script = $11, slicer_script_args = $12, slicer_result_validator_args = $13
		 WHERE name = $1`,
		rt.Name, rt.Description, rt.Label, nullableJSON(rt.DataSchema), rt.Level, rt.Role,
		rt.MinUsers, rt.MaxUsers, inputFiles, outputFiles, rt.SlicerScript, scriptArgs, validatorArgs,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	if tag.RowsAffected() == 0 {
		return nil, clarineterr.NotFoundf("record type %s not found", rt.Name)
	}
	return rt, nil
}

// Delete removes a record type by name.
func (r *RecordTypeRepo) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recordtype WHERE name = $1`, name)
	if err != nil {
		return translate(err, "")
	}
	if tag.RowsAffected() == 0 {
		return clarineterr.NotFoundf("record type %s not found", name)
	}
	return nil
}

// List returns every record type.
func (r *RecordTypeRepo) List(ctx context.Context) ([]*RecordType, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, description, label, data_schema, level, role, min_users, max_users,
		        input_files, output_files, slicer_script, slicer_script_args, slicer_result_validator_args
		 FROM recordtype ORDER BY name`)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()

	var out []*RecordType
	for rows.Next() {
		rt := &RecordType{}
		var inputFiles, outputFiles, scriptArgs, validatorArgs []byte
		if err := rows.Scan(&rt.Name, &rt.Description, &rt.Label, &rt.DataSchema, &rt.Level, &rt.Role,
			&rt.MinUsers, &rt.MaxUsers, &inputFiles, &outputFiles, &rt.SlicerScript, &scriptArgs, &validatorArgs); err != nil {
			return nil, translate(err, "")
		}
		_ = json.Unmarshal(inputFiles, &rt.InputFiles)
		_ = json.Unmarshal(outputFiles, &rt.OutputFiles)
		_ = json.Unmarshal(scriptArgs, &rt.SlicerScriptArgs)
		_ = json.Unmarshal(validatorArgs, &rt.SlicerResultValidatorArg)
		out = append(out, rt)
	}
	return out, rows.Err()
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
