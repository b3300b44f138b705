package catalog

import "github.com/hudumahub/huduma-system/internal/model"

// defaultPlatformFee is the operator margin applied to bundled services.
const defaultPlatformFee = 150

// Defaults returns a copy of the bundled service catalog. Operators may
// override any of these through the admin surface; the bundled entries
// remain the fallback for slugs without an override.
func Defaults() []model.ServiceDefinition {
	res := make([]model.ServiceDefinition, len(defaultServices))
	copy(res, defaultServices)
	return res
}

func defaultBySlug(slug string) (*model.ServiceDefinition, bool) {
	for _, def := range defaultServices {
		if def.Slug == slug || def.ID == slug {
			d := def
			return &d, true
		}
	}
	return nil, false
}

var defaultServices = []model.ServiceDefinition{
	{
		ID:           "passport-application",
		Slug:         "passport-application",
		Category:     "Immigration",
		Title:        "Passport Application (New)",
		Description:  "First-time application. We handle eCitizen booking and forms.",
		BaseCost:     2500,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"Original ID", "Birth Certificate", "Parents IDs", "Digital Photo"},
		Turnaround:   "10-15 Days",
		FieldSchema: []model.FieldDescriptor{
			{ID: "birth_entry_no", Label: "Birth Cert Entry Number", Kind: model.FieldKindText, Required: true, HelperText: "Found on the top right of the certificate"},
			{ID: "occupation", Label: "Occupation", Kind: model.FieldKindText, Required: true},
			{ID: "file_id", Label: "Upload ID (Front & Back)", Kind: model.FieldKindFile, Required: true},
			{ID: "file_birth_cert", Label: "Upload Birth Certificate", Kind: model.FieldKindFile, Required: true},
			{ID: "file_parents_id", Label: "Upload Parents IDs", Kind: model.FieldKindFile, Required: true},
			{ID: "file_photo", Label: "Passport Photo (White Background)", Kind: model.FieldKindFile, Required: true},
		},
	},
	{
		ID:           "passport-renewal",
		Slug:         "passport-renewal",
		Category:     "Immigration",
		Title:        "Passport Renewal",
		Description:  "Renewal of expired, filled, or mutilated passport.",
		BaseCost:     2000,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"Old Passport", "Original ID", "Passport Photos"},
		Turnaround:   "10 Days",
		FieldSchema: []model.FieldDescriptor{
			{ID: "old_passport_no", Label: "Old Passport Number", Kind: model.FieldKindText, Required: true},
			{ID: "file_old_passport_bio", Label: "Upload Old Passport Bio Page", Kind: model.FieldKindFile, Required: true},
			{ID: "file_id", Label: "Upload ID", Kind: model.FieldKindFile, Required: true},
			{ID: "file_photo", Label: "Passport Photo", Kind: model.FieldKindFile, Required: true},
		},
	},
	{
		ID:           "birth-certificate",
		Slug:         "birth-certificate",
		Category:     "Civil Registration",
		Title:        "Birth Certificate Application",
		Description:  "Application for a new birth certificate.",
		BaseCost:     1500,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"Notification of Birth", "Parents ID", "Clinic Card"},
		Turnaround:   "5-7 Days",
		FieldSchema: []model.FieldDescriptor{
			{ID: "notification_no", Label: "Birth Notification Number", Kind: model.FieldKindText, Required: true},
			{ID: "hospital_name", Label: "Hospital of Birth", Kind: model.FieldKindText, Required: true},
			{ID: "file_notification", Label: "Upload Notification Slip", Kind: model.FieldKindFile, Required: true},
			{ID: "file_parents_id", Label: "Upload Parents IDs", Kind: model.FieldKindFile, Required: true},
		},
	},
	{
		ID:           "good-conduct",
		Slug:         "good-conduct",
		Category:     "DCI",
		Title:        "Good Conduct (PCC)",
		Description:  "Police Clearance Certificate application.",
		BaseCost:     1550,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"Original ID", "Huduma Namba (Optional)"},
		Turnaround:   "3-5 Days",
		FieldSchema: []model.FieldDescriptor{
			{ID: "id_number", Label: "ID Number", Kind: model.FieldKindText, Required: true},
			{ID: "fingerprint_location", Label: "Preferred Fingerprint Center", Kind: model.FieldKindText, Required: true, HelperText: "e.g., Huduma Center Nyeri"},
			{ID: "file_id", Label: "Upload ID", Kind: model.FieldKindFile, Required: true},
		},
	},
	{
		ID:           "kra-pin-reg",
		Slug:         "kra-pin-reg",
		Category:     "KRA",
		Title:        "KRA PIN Registration",
		Description:  "New PIN generation for individuals.",
		BaseCost:     500,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"Original ID", "Email", "Phone"},
		Turnaround:   "Instant",
		FieldSchema: []model.FieldDescriptor{
			{ID: "id_number", Label: "ID Number", Kind: model.FieldKindText, Required: true},
			{ID: "dob", Label: "Date of Birth", Kind: model.FieldKindDate, Required: true},
			{ID: "district", Label: "District of Birth", Kind: model.FieldKindText, Required: true},
			{ID: "mother_name", Label: "Mothers Name", Kind: model.FieldKindText, Required: true},
			{ID: "file_id", Label: "Upload ID", Kind: model.FieldKindFile, Required: true},
		},
	},
	{
		ID:           "kra-returns",
		Slug:         "kra-returns",
		Category:     "KRA",
		Title:        "KRA Returns (Nil/Employment)",
		Description:  "Filing of annual tax returns.",
		BaseCost:     500,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"KRA PIN", "P9 Form (if employed)", "Password"},
		Turnaround:   "24 Hours",
		FieldSchema: []model.FieldDescriptor{
			{ID: "kra_pin", Label: "KRA PIN", Kind: model.FieldKindText, Required: true},
			{ID: "kra_password", Label: "iTax Password", Kind: model.FieldKindText, Required: false, HelperText: "Leave blank if you want us to reset it"},
			{ID: "return_type", Label: "Return Type", Kind: model.FieldKindSelect, Required: true, Options: []string{"Nil Return", "Employment (P9)"}},
			{ID: "file_p9", Label: "Upload P9 Form (If Employed)", Kind: model.FieldKindFile, Required: false},
		},
	},
	{
		ID:           "smart-dl",
		Slug:         "smart-dl",
		Category:     "NTSA",
		Title:        "Smart DL Application",
		Description:  "Apply for the new digital driving license.",
		BaseCost:     3550,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"Old DL", "ID Copy", "Blood Group Report"},
		Turnaround:   "Instant Booking",
		FieldSchema: []model.FieldDescriptor{
			{ID: "id_number", Label: "ID Number", Kind: model.FieldKindText, Required: true},
			{ID: "old_dl_no", Label: "Old DL Number", Kind: model.FieldKindText, Required: false},
			{ID: "blood_group", Label: "Blood Group", Kind: model.FieldKindText, Required: false},
			{ID: "file_id", Label: "Upload ID", Kind: model.FieldKindFile, Required: true},
		},
	},
	{
		ID:           "logbook-search",
		Slug:         "logbook-search",
		Category:     "NTSA",
		Title:        "Motor Vehicle Search",
		Description:  "Confirm vehicle ownership details.",
		BaseCost:     1000,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"Car Reg Number", "ID Copy"},
		Turnaround:   "15 Minutes",
		FieldSchema: []model.FieldDescriptor{
			{ID: "reg_number", Label: "Vehicle Registration No.", Kind: model.FieldKindText, Required: true},
			{ID: "file_id", Label: "Upload Your ID", Kind: model.FieldKindFile, Required: true},
		},
	},
	{
		ID:           "helb-application",
		Slug:         "helb-application",
		Category:     "Education",
		Title:        "HELB Loan Application",
		Description:  "First time or subsequent loan application.",
		BaseCost:     1500,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"ID Copy", "Admission Letter", "Guarantors"},
		Turnaround:   "As per Deadline",
		FieldSchema: []model.FieldDescriptor{
			{ID: "index_number", Label: "KCSE Index Number", Kind: model.FieldKindText, Required: true},
			{ID: "university", Label: "University/College Name", Kind: model.FieldKindText, Required: true},
			{ID: "file_admission", Label: "Upload Admission Letter", Kind: model.FieldKindFile, Required: true},
			{ID: "file_id", Label: "Upload ID", Kind: model.FieldKindFile, Required: true},
		},
	},
	{
		ID:           "bill-payment",
		Slug:         "bill-payment",
		Category:     "Utilities",
		Title:        "Token / Water Bill",
		Description:  "Fast payment processing.",
		BaseCost:     100,
		PlatformFee:  defaultPlatformFee,
		Requirements: []string{"Meter Number", "Amount"},
		Turnaround:   "Instant",
		FieldSchema: []model.FieldDescriptor{
			{ID: "bill_type", Label: "Bill Type", Kind: model.FieldKindSelect, Required: true, Options: []string{"KPLC Token", "Water Bill", "WiFi"}},
			{ID: "account_no", Label: "Meter/Account Number", Kind: model.FieldKindText, Required: true},
			{ID: "amount", Label: "Amount to Pay", Kind: model.FieldKindNumber, Required: true},
		},
	},
}
