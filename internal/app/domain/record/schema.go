package record

// Kind describes how a field's raw submitted value is coerced.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindDate
	KindSignature
)

// FieldSpec declares one field of a form schema. Required fields are enforced
// on every save; StrictRequired fields are additionally enforced before PDF
// export, where a blank field would produce an unacceptable document.
type FieldSpec struct {
	Name           string
	Kind           Kind
	Required       bool
	StrictRequired bool
}

func str(name string) FieldSpec        { return FieldSpec{Name: name, Kind: KindString} }
func strStrict(name string) FieldSpec  { return FieldSpec{Name: name, Kind: KindString, StrictRequired: true} }
func dateStrict(name string) FieldSpec { return FieldSpec{Name: name, Kind: KindDate, StrictRequired: true} }
func numStrict(name string) FieldSpec  { return FieldSpec{Name: name, Kind: KindNumber, StrictRequired: true} }
func num(name string) FieldSpec        { return FieldSpec{Name: name, Kind: KindNumber} }
func boolean(name string) FieldSpec    { return FieldSpec{Name: name, Kind: KindBool} }
func signature(name string) FieldSpec  { return FieldSpec{Name: name, Kind: KindSignature} }

func required(name string) FieldSpec {
	return FieldSpec{Name: name, Kind: KindString, Required: true, StrictRequired: true}
}

// schemas maps each form type to its declarative field list. Adding a form
// type is a data change here plus a layout template; no validation code
// changes.
var schemas = map[FormType][]FieldSpec{
	TypeRejoining: {
		required("name"),
		required("wrokId"),
		strStrict("designation"),
		strStrict("department"),
		strStrict("mobileNo"),
		strStrict("passportNo"),
		strStrict("civilNo"),
		strStrict("leaveType"),
		dateStrict("leaveStartDate"),
		dateStrict("leaveEndDate"),
		dateStrict("rejoinDate"),
		dateStrict("lastWorkDate"),
		str("delayReason"),
		strStrict("contractStatus"),
		dateStrict("signDate"),
		signature("employeeSignature"),
		str("notes"),
	},
	TypeLeaveExpats: {
		required("name"),
		required("wrokId"),
		strStrict("designation"),
		strStrict("department"),
		strStrict("mobileNo"),
		strStrict("civilNo"),
		strStrict("passportNo"),
		strStrict("leaveType"),
		numStrict("leaveDays"),
		dateStrict("startDate"),
		dateStrict("endDate"),
		dateStrict("lastWorkDate"),
		dateStrict("rejoinDate"),
		str("addressAbroad"),
		str("phoneAbroad"),
		str("altEmployeeName"),
		str("altEmployeeId"),
		dateStrict("signDate"),
		signature("employeeSignature"),
		signature("altEmployeeSignature"),
		boolean("ticketEntitlement"),
		str("notes"),
	},
	TypeLeaveOmani: {
		required("name"),
		required("wrokId"),
		strStrict("designation"),
		strStrict("department"),
		strStrict("mobileNo"),
		strStrict("civilNo"),
		strStrict("leaveType"),
		numStrict("leaveDays"),
		dateStrict("startDate"),
		dateStrict("endDate"),
		dateStrict("lastWorkDate"),
		dateStrict("rejoinDate"),
		str("altEmployeeName"),
		str("altEmployeeId"),
		num("leaveBalance"),
		dateStrict("signDate"),
		signature("employeeSignature"),
		signature("altEmployeeSignature"),
		str("notes"),
	},
}

// Schema returns the field specs for a form type. The boolean reports whether
// the type is known.
func Schema(typ FormType) ([]FieldSpec, bool) {
	specs, ok := schemas[typ]
	return specs, ok
}

// SearchFields lists the data keys matched by the list view's substring
// search. The same keys apply to every form type.
func SearchFields() []string {
	return []string{"name", "wrokId"}
}

// DisplayNameField is the data key used to derive export filenames.
const DisplayNameField = "name"
