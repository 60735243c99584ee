package warehouse

import (
	"fmt"
	"strings"
)

// dedupSQL selects the staged rows with one row per key, the latest wins.
func dedupSQL(staging string) string {
	cols := strings.Join(dataColumnNames(), ", ")
	return fmt.Sprintf(
		"SELECT DISTINCT ON (%[1]s) %[2]s FROM %[3]s ORDER BY %[1]s, seq DESC",
		keyExpr, cols, staging)
}

// mutableColumns are updated when a staged row matches an existing key.
func mutableColumns() []string {
	var out []string
	for _, c := range dataColumnNames() {
		if !isKeyColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

func isKeyColumn(c string) bool {
	switch c {
	case "n_conta", "n_centro_custo", "data", "versao":
		return true
	}
	return false
}

// deletePartitionSQL clears one VERSAO before a full replace.
func deletePartitionSQL(t tableNames) string {
	return fmt.Sprintf("DELETE FROM %s WHERE versao = $1", t.table)
}

// upsertFromStagingSQL inserts the deduplicated staging rows. Keys already
// present, which happens when a dataset carries rows of another VERSAO, are
// updated in place. The result row counts inserts and updates.
func upsertFromStagingSQL(t tableNames, staging string) string {
	cols := dataColumnNames()
	sets := make([]string, 0, len(cols))
	for _, c := range mutableColumns() {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets, "data_atualizacao = EXCLUDED.data_atualizacao")

	return fmt.Sprintf(`WITH upserted AS (
	INSERT INTO %s (%s, data_atualizacao)
	SELECT %s, now() FROM (%s) s
	ON CONFLICT %s DO UPDATE SET %s
	RETURNING (xmax = 0) AS inserted
)
SELECT count(*) FILTER (WHERE inserted), count(*) FILTER (WHERE NOT inserted) FROM upserted`,
		t.table, strings.Join(cols, ", "),
		strings.Join(cols, ", "), dedupSQL(staging),
		conflictTarget, strings.Join(sets, ", "))
}

// keyMatch is the MERGE join condition. Null cost centres match each other.
const keyMatch = "t.n_conta = s.n_conta AND t.n_centro_custo IS NOT DISTINCT FROM s.n_centro_custo " +
	"AND t.data = s.data AND t.versao = s.versao"

// countMatchedSQL counts staged keys that already exist.
func countMatchedSQL(t tableNames, staging string) string {
	return fmt.Sprintf("SELECT count(*) FROM (%s) s JOIN %s t ON %s", dedupSQL(staging), t.table, keyMatch)
}

// mergeSQL reconciles the staged batch in a single statement. Existing rows
// without a staged counterpart are left alone.
func mergeSQL(t tableNames, staging string) string {
	cols := dataColumnNames()
	sets := make([]string, 0, len(cols))
	for _, c := range mutableColumns() {
		sets = append(sets, fmt.Sprintf("%s = s.%s", c, c))
	}
	sets = append(sets, "data_atualizacao = now()")

	vals := make([]string, len(cols))
	for i, c := range cols {
		vals[i] = "s." + c
	}

	return fmt.Sprintf(`MERGE INTO %s t
USING (%s) s
ON %s
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s, data_atualizacao) VALUES (%s, now())`,
		t.table, dedupSQL(staging), keyMatch,
		strings.Join(sets, ", "),
		strings.Join(cols, ", "), strings.Join(vals, ", "))
}
