package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	language "github.com/hanpama/blogql/internal/language"
	schema "github.com/hanpama/blogql/internal/schema"
)

// Executor executes operations against one schema and runtime. It holds no
// per-request state and may be shared.
type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

type executionState struct {
	ctx            context.Context
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any

	pending []asyncTask
	errors  []GraphQLError
	// response paths nulled by a non-null violation, keyed by Path.String
	nulled map[string]struct{}
}

type asyncTask struct {
	Task         AsyncResolveTask
	ResponsePath Path
	FieldType    *schema.TypeRef
	Fields       []*language.Field
}

// asyncPending marks a response slot whose value arrives with a later batch.
type asyncPending struct{}

// ExecuteRequest runs the selected operation of document. Request errors
// (unknown operation, bad variables) yield a result without Data.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	operation := getOperation(document, operationName)
	if operation == nil {
		return requestError("operation not found")
	}

	coerced, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return requestError(err.Error())
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query:
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	case language.Subscription:
		rootType = e.schema.GetSubscriptionType()
	default:
		return requestError(fmt.Sprintf("unsupported operation type: %s", operation.Operation))
	}
	if rootType == nil {
		return requestError(fmt.Sprintf("root type not found for %s operation", operation.Operation))
	}

	state := &executionState{
		ctx:            ctx,
		runtime:        e.runtime,
		schema:         e.schema,
		document:       document,
		variableValues: coerced,
		errors:         []GraphQLError{},
		nulled:         make(map[string]struct{}),
	}

	root := executeSelectionSet(state, rootType, operation.SelectionSet, initialValue, Path{})
	if root == nil {
		root = make(map[string]any)
	}

	for len(state.pending) > 0 {
		tasks, results := flushAsyncTasks(state)
		for i, r := range results {
			completeAsyncField(state, tasks[i], r, root)
		}
	}

	return &ExecutionResult{Data: root, Errors: state.errors}
}

func requestError(msg string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: msg}}}
}

// executeSelectionSet resolves the sync fields of selectionSet and queues the
// async ones. It returns nil when a non-null child of a non-root object is
// null.
func executeSelectionSet(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	out := make(map[string]any)

	for _, cf := range collectFields(state, objectType, selectionSet).orderedFields() {
		fieldPath := appendPath(path, cf.ResponseName)
		value := executeFieldGroup(state, objectType, objectValue, cf.Fields, fieldPath)

		name := cf.Fields[0].Name
		if name == "__typename" {
			out[cf.ResponseName] = value
			continue
		}
		def := getFieldDefinition(objectType, name)
		if def == nil {
			continue
		}

		if isNullish(value) {
			if schema.IsNonNull(def.Type) && len(path) > 0 {
				return nil
			}
			value = nil
		}
		out[cf.ResponseName] = value
	}
	return out
}

func executeFieldGroup(state *executionState, objectType *schema.Type, objectValue any, fields []*language.Field, path Path) any {
	name := fields[0].Name
	if name == "__typename" {
		return objectType.Name
	}

	def := getFieldDefinition(objectType, name)
	if def == nil {
		state.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", name, objectType.Name), path)
		return nil
	}

	args := coerceArgumentValues(def, fields[0].Arguments, state.variableValues, state, path)

	if def.Async {
		state.pending = append(state.pending, asyncTask{
			Task: AsyncResolveTask{
				ObjectType: objectType.Name,
				Field:      name,
				Source:     objectValue,
				Args:       args,
			},
			ResponsePath: path,
			FieldType:    def.Type,
			Fields:       fields,
		})
		return asyncPending{}
	}

	value, err := state.runtime.ResolveSync(state.ctx, objectType.Name, name, objectValue, args)
	if err != nil {
		state.addFieldError(err, path)
		value = nil
	}
	return completeValue(state, def.Type, fields, value, path)
}

// flushAsyncTasks sends the live pending tasks to the runtime in one batch.
func flushAsyncTasks(state *executionState) ([]asyncTask, []AsyncResolveResult) {
	live := make([]asyncTask, 0, len(state.pending))
	for _, at := range state.pending {
		if !state.isNulled(at.ResponsePath) {
			live = append(live, at)
		}
	}
	state.pending = nil

	tasks := make([]AsyncResolveTask, len(live))
	for i, at := range live {
		tasks[i] = at.Task
	}

	if err := state.ctx.Err(); err != nil {
		results := make([]AsyncResolveResult, len(tasks))
		for i := range results {
			results[i].Error = err
		}
		return live, results
	}

	results := state.runtime.BatchResolveAsync(state.ctx, tasks)
	if len(results) != len(tasks) {
		fixed := make([]AsyncResolveResult, len(tasks))
		copy(fixed, results)
		for i := len(results); i < len(tasks); i++ {
			fixed[i].Error = fmt.Errorf("runtime returned %d results for %d tasks", len(results), len(tasks))
		}
		results = fixed
	}
	return live, results
}

// completeAsyncField writes the completed value of at into root. A null in a
// non-null position nulls the top-level response field and prunes the tasks
// queued below it.
func completeAsyncField(state *executionState, at asyncTask, res AsyncResolveResult, root map[string]any) {
	path := at.ResponsePath
	if state.isNulled(path) {
		return
	}

	var completed any
	if res.Error != nil {
		state.addFieldError(res.Error, path)
	} else {
		completed = completeValue(state, at.FieldType, at.Fields, res.Value, path)
	}

	if isNullish(completed) {
		if schema.IsNonNull(at.FieldType) {
			top := topLevelFieldPath(path)
			setValueAtPath(root, top, nil)
			state.markNulled(top)
			return
		}
		completed = nil
	}
	setValueAtPath(root, path, completed)
}

func completeValue(state *executionState, fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path.String()), path)
			}
			return nil
		}
		completed := completeValue(state, schema.Unwrap(fieldType), fields, result, path)
		if isNullish(completed) {
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}
	if schema.IsList(fieldType) {
		return completeListValue(state, fieldType, fields, result, path)
	}

	name := schema.GetNamedType(fieldType)
	typ := state.schema.Types[name]
	if typ == nil {
		state.addError(fmt.Sprintf("Unknown type: %s", name), path)
		return nil
	}

	switch typ.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		v, err := state.runtime.SerializeLeafValue(state.ctx, name, result)
		if err != nil {
			state.addFieldError(err, path)
			return nil
		}
		return v
	case schema.TypeKindObject:
		return executeSelectionSet(state, typ, mergeSelectionSets(fields), result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(state, name, fields, result, path)
	default:
		state.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", typ.Kind), path)
		return nil
	}
}

func completeListValue(state *executionState, listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	items, ok := result.([]any)
	if !ok {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice {
			state.addError(fmt.Sprintf("Expected list value, got %T", result), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := schema.Unwrap(listType)
	out := make([]any, len(items))
	for i, item := range items {
		v := completeValue(state, inner, fields, item, appendPath(path, i))
		if schema.IsNonNull(inner) && isNullish(v) {
			return nil
		}
		out[i] = v
	}
	return out
}

func completeAbstractValue(state *executionState, abstractType string, fields []*language.Field, result any, path Path) any {
	typeName, err := state.runtime.ResolveType(state.ctx, abstractType, result)
	if err != nil {
		state.addFieldError(err, path)
		return nil
	}
	typ := state.schema.Types[typeName]
	if typ == nil || typ.Kind != schema.TypeKindObject || !state.schema.IsPossibleType(abstractType, typeName) {
		state.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType, typeName), path)
		return nil
	}
	return executeSelectionSet(state, typ, mergeSelectionSets(fields), result, path)
}

func (s *executionState) markNulled(p Path) {
	if key := p.String(); key != "" {
		s.nulled[key] = struct{}{}
	}
}

// isNulled reports whether p or one of its prefixes was nulled.
func (s *executionState) isNulled(p Path) bool {
	if len(s.nulled) == 0 {
		return false
	}
	for i := 1; i <= len(p); i++ {
		if _, ok := s.nulled[p[:i].String()]; ok {
			return true
		}
	}
	return false
}

func topLevelFieldPath(p Path) Path {
	for _, elem := range p {
		if name, ok := elem.(string); ok {
			return Path{name}
		}
	}
	return Path{}
}

// getOperation picks the operation named operationName, or the only one when
// the name is empty.
func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	for _, op := range document.Operations {
		if op.Name == operationName {
			return op
		}
	}
	return nil
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return schema.NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return schema.NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return nil
}

func (s *executionState) addError(message string, path Path) {
	s.errors = append(s.errors, GraphQLError{Message: message, Path: path})
}

// addFieldError records a resolver error, keeping its extensions.
func (s *executionState) addFieldError(err error, path Path) {
	gqlErr := GraphQLError{Message: err.Error(), Path: path}
	var ext interface{ Extensions() map[string]any }
	if errors.As(err, &ext) {
		gqlErr.Extensions = ext.Extensions()
	}
	s.errors = append(s.errors, gqlErr)
}

func (s *executionState) hasErrorAtPath(path Path) bool {
	for _, err := range s.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}

// setValueAtPath writes value into the response tree, creating intermediate
// objects as needed.
func setValueAtPath(root map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	var current any = root
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return
			}
			next, ok := m[e]
			if !ok {
				next = make(map[string]any)
				m[e] = next
			}
			current = next
		case int:
			list, ok := current.([]any)
			if !ok || e >= len(list) {
				return
			}
			if list[e] == nil {
				list[e] = make(map[string]any)
			}
			current = list[e]
		}
	}
	switch last := path[len(path)-1].(type) {
	case string:
		if m, ok := current.(map[string]any); ok {
			m[last] = value
		}
	case int:
		if list, ok := current.([]any); ok && last < len(list) {
			list[last] = value
		}
	}
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish reports nil interfaces and typed nils.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
