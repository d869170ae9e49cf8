package transform

import "time"

// Registry holds the static descriptor of every known report family,
// keyed by destination table. The report-name-to-table mapping is part
// of the runtime configuration; this map is the column contract.
var Registry = map[string]*Descriptor{}

// Lookup resolves the descriptor of a destination table.
func Lookup(table string) (*Descriptor, bool) {
	var d, ok = Registry[table]
	return d, ok
}

func register(d *Descriptor) *Descriptor {
	if d.Database == "" {
		d.Database = "DataCore"
	}
	if d.KeyColumn == "" {
		d.KeyColumn = "key_id"
	}
	Registry[d.Table] = d
	return d
}

var DataCoreFreight = register(&Descriptor{
	Table:       "datacore_freight",
	Sentinel:    "original_voyage_month_string",
	IntColumns:  []string{"container_count", "container_size", "operation_month"},
	DateColumns: []string{"voyage_date", "operation_date", "voyage_month"},
	Post: func(row Row) {
		// voyage_month arrives as a full date and collapses to its
		// month number.
		if t, ok := row["voyage_month"].(time.Time); ok {
			row["voyage_month"] = int64(t.Month())
		}
	},
	Columns: []string{
		"key_id", "uuid", "debit_status", "invoice_status", "invoice_port", "terminal", "operation_date",
		"original_voyage_month_string", "voyage", "voyage_month", "voyage_date", "is_freight", "operation_month",
		"container_count", "discharge_load_port", "booking_discharge_port", "booking_load_port", "tnved",
		"container_size", "cargo", "client_inn", "manager", "line", "client", "client_uid", "operation_segment",
		"vessel", "department", "container", "direction", "order_number", "container_type", "consignment",
		"destination_port", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var NaturalIndicatorsContractsSegments = register(&Descriptor{
	Table:       "natural_indicators_contracts_segments",
	Sentinel:    "original_date_string",
	IntColumns:  []string{"year", "month"},
	DateColumns: []string{"date"},
	Columns: []string{
		"key_id", "uuid", "direction", "month", "year", "segment", "date", "original_date_string", "order_number",
		"container_number", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var CounterParties = register(&Descriptor{
	Table: "counterparties",
	Columns: []string{
		"key_id", "uuid", "main_manager", "classification", "counterparty", "is_supplier", "registration_country",
		"inn", "relationship_type", "legal_physical_entity", "head_counterparty", "full_name", "is_foreign_company",
		"short_name", "is_client", "legal_address", "planned_turnover", "status", "rc_uid", "is_other",
		"counterparty_type", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var OrdersReport = register(&Descriptor{
	Table:       "orders_report",
	Sentinel:    "original_voyage_date_string",
	DateColumns: []string{"voyage_date"},
	Columns: []string{
		"key_id", "uuid", "tnved", "line", "load_port", "shipper_inn", "consignee", "shipper", "container_number",
		"vessel", "voyage_date", "voyage", "consignment", "order_number", "original_voyage_date_string",
		"original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var AutoPickupGeneralReport = register(&Descriptor{
	Table:    "auto_pickup_general_report",
	Sentinel: "original_date_delivery_plan_string",
	FloatColumns: []string{
		"overpayment", "downtime_amount", "agreed_rate", "total_rate", "carrier_rate", "economy",
		"overload_amount", "add_expense_amount",
	},
	IntColumns: []string{"container_size"},
	DateColumns: []string{
		"date_delivery_empty_fact", "date_delivery_empty_plan", "date_loading_fact", "date_delivery_fact",
		"date_receiving_empty_fact", "date_delivery_plan", "date_loading_plan", "date_receiving_empty_plan",
	},
	Columns: []string{
		"key_id", "uuid", "comment", "performer", "overpayment", "total_rate", "downtime_amount", "agreed_rate",
		"carrier", "date_delivery_empty_fact", "original_date_delivery_plan_string", "date_delivery_empty_plan",
		"date_loading_fact", "mode", "date_delivery_fact", "container_size", "overload_amount", "line", "client",
		"client_uid", "date_receiving_empty_fact", "department", "date_delivery_plan", "destination_point",
		"manager", "carrier_rate", "departure_point", "terminal_receiving_empty", "container_number",
		"terminal_delivery_empty", "date_loading_plan", "direction", "container_type", "transportation_type",
		"economy", "order_number", "increased_rates_reason", "service", "date_receiving_empty_plan",
		"add_expense_amount", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var TransportUnits = register(&Descriptor{
	Table: "transport_units",
	Columns: []string{
		"key_id", "uuid", "owner", "container_number", "container_type", "container_size",
		"original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var Consignments = register(&Descriptor{
	Table:       "consignments",
	Sentinel:    "original_voyage_date_string",
	IntColumns:  []string{"container_size", "teu", "year"},
	DateColumns: []string{"voyage_date"},
	Columns: []string{
		"key_id", "uuid", "direction", "year", "voyage_date", "original_voyage_date_string", "voyage", "cargo",
		"container_number", "container_size", "agent_line", "line", "teu", "consignee", "shipper", "order_number",
		"container_type", "consignment", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var SalesPlan = register(&Descriptor{
	Table:      "sales_plan",
	IntColumns: []string{"teu", "container_count", "container_size", "year", "month"},
	Columns: []string{
		"key_id", "uuid", "teu", "container_count", "container_size", "direction", "client", "year", "month",
		"client_uid", "department", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var NaturalIndicatorsTransactionFactDate = register(&Descriptor{
	Table:       "natural_indicators_transaction_fact_date",
	Sentinel:    "original_operation_date_string",
	IntColumns:  []string{"container_size", "operation_month", "container_count", "teu", "operation_year"},
	DateColumns: []string{"operation_date", "order_date"},
	Columns: []string{
		"key_id", "uuid", "container_size", "operation_date", "is_full", "original_operation_date_string",
		"operation_month", "container_count", "teu", "manager", "container_type", "operation_year", "order_number",
		"direction", "client", "order_date", "client_uid", "department", "original_file_parsed_on", "sign",
		"is_obsolete_date",
	},
})

var DevelopmentCounterpartyDepartment = register(&Descriptor{
	Table:      "development_counterparty_department",
	IntColumns: []string{"year"},
	Columns: []string{
		"key_id", "uuid", "client", "year", "direction", "client_uid", "department", "original_file_parsed_on",
		"sign", "is_obsolete_date",
	},
})

var ExportBookings = register(&Descriptor{
	Table:       "export_bookings",
	Sentinel:    "original_booking_date_string",
	IntColumns:  []string{"container_size", "container_count", "freight_rate", "teu"},
	DateColumns: []string{"cargo_readiness", "etd", "eta", "booking_date", "sob"},
	Columns: []string{
		"key_id", "uuid", "freight_rate_uid", "booking_status", "discharge_port_bay", "client_uid", "client",
		"container_owner", "load_port_bay", "cargo_readiness", "etd", "sob", "teu", "freight_terms",
		"container_number", "container_size", "container_type", "eta", "original_booking_date_string",
		"voyage", "container_count", "discharge_port", "load_port", "direction", "freight_rate",
		"forwarder", "line", "service_number", "department", "vessel", "order_number", "booking_date",
		"manager", "booking", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var ImportBookings = register(&Descriptor{
	Table:        "import_bookings",
	Sentinel:     "original_booking_date_string",
	FloatColumns: []string{"freight_rate"},
	IntColumns:   []string{"container_size", "container_count", "teu"},
	DateColumns:  []string{"etd", "eta", "booking_date", "sob"},
	Columns: []string{
		"key_id", "uuid", "freight_rate_uid", "booking_status", "discharge_port_bay", "client_uid", "client",
		"container_owner", "load_port_bay", "etd", "agent", "container_number", "container_size", "container_type",
		"eta", "sob", "original_booking_date_string", "teu", "freight_terms", "voyage", "container_count",
		"discharge_port", "load_port", "direction", "freight_rate", "forwarder", "remarks", "line", "consignee",
		"service_number", "department", "vessel", "order_number", "booking_date", "manager", "booking",
		"original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var CompletedRepackagesReport = register(&Descriptor{
	Table:    "completed_repackages_report",
	Sentinel: "original_repacking_date_string",
	IntColumns: []string{
		"warehouse_wms_count", "inspection_container_count", "import_teu", "import_container_count",
		"export_teu", "export_container_count",
	},
	DateColumns: []string{"repacking_date"},
	Columns: []string{
		"key_id", "uuid", "warehouse_wms_count", "inspection_container_count", "import_teu",
		"consignment", "import_container_count", "terminal", "export_teu", "zatarka_object_type",
		"rastarka_object_type", "repacking_place", "operation_type", "container_number",
		"export_container_count", "cargo", "technology", "repacking_date",
		"original_repacking_date_string", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var AutoVisits = register(&Descriptor{
	Table:           "auto_visits",
	Sentinel:        "original_entry_datetime_string",
	IntColumns:      []string{"processing_time", "waiting_time"},
	DatetimeColumns: []string{"exit_datetime", "entry_datetime", "registration_datetime"},
	Columns: []string{
		"key_id", "uuid", "processing_place", "is_manual_select", "rejection_reason", "comment",
		"processing_time", "exit_datetime", "entry_datetime", "original_entry_datetime_string",
		"result", "waiting_time", "status", "container_number", "purpose", "registration_datetime",
		"repacking_place", "terminal", "car_number", "request_number", "queue_id",
		"original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var AccountingDocumentsRequests = register(&Descriptor{
	Table:           "accounting_documents_requests",
	Sentinel:        "original_request_date_string",
	DatetimeColumns: []string{"start_date", "end_date", "request_date"},
	Columns: []string{
		"key_id", "uuid", "rejection_reason", "status", "performer", "comment",
		"start_date", "manager", "description", "department", "is_urgency",
		"addressee_peo", "end_date", "request_date", "original_request_date_string",
		"order_number", "request_type", "request_number", "original_file_parsed_on",
		"sign", "is_obsolete_date",
	},
})

var DailySummary = register(&Descriptor{
	Table:           "daily_summary",
	Sentinel:        "original_motion_date_string",
	FloatColumns:    []string{"tonnage", "cargo_weight", "tare_weight"},
	IntColumns:      []string{"container_size"},
	DatetimeColumns: []string{"motion_date"},
	Columns: []string{
		"key_id", "uuid", "organization_uid", "comment", "direction", "cargo_weight",
		"consignment_imp", "vtt_gtd", "cargo", "destination_point", "transport_type",
		"client_uid", "terminal", "motion_type", "seal", "manager", "departure_point",
		"transport_number", "tare_weight", "organization", "tonnage", "is_so", "client",
		"line", "order_number", "container_type", "container_size", "consignment_exp",
		"container_state", "container_number", "forwarder", "damages_note", "motion_date",
		"original_motion_date_string", "is_request_line", "original_file_parsed_on",
		"sign", "is_obsolete_date",
	},
})

var RZHDOperationsReport = register(&Descriptor{
	Table:      "rzhd_by_operations_report",
	Sentinel:   "original_operation_date_string",
	IntColumns: []string{"container_size", "operation_month", "operation_year"},
	DateColumns: []string{
		"operation_date", "departure_date", "arrival_date", "planned_start_date",
		"planned_end_date", "fact_start_date", "fact_end_date",
	},
	Columns: []string{
		"key_id", "uuid", "document_number", "etsng_code_ktk", "etsng_order_base_cargo", "etsng_operation_cargo",
		"is_border_crossing_point", "service", "client_uid", "client", "etsng_name", "container_size",
		"operation_month", "operation_date", "original_operation_date_string", "direction", "type_of_relation",
		"department", "container_number", "etsng_code", "destination_point", "destination_station_code",
		"destination_point_type", "manager", "client_inn", "departure_point", "departure_station_code",
		"departure_point_type", "order_number", "operation_name", "container_type", "operation_year",
		"departure_date", "arrival_date", "planned_start_date", "planned_end_date", "fact_start_date",
		"fact_end_date", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var OrdersMarginalityReport = register(&Descriptor{
	Table:    "orders_marginality_report",
	Sentinel: "original_order_creation_date_string",
	FloatColumns: []string{
		"expenses_rental_without_vat_fact", "income_without_vat_fact", "profit_plan",
		"income_without_vat_plan", "expenses_without_vat_plan", "expenses_without_vat_fact", "profit_fact",
	},
	DateColumns: []string{"order_creation_date"},
	Columns: []string{
		"key_id", "uuid", "expenses_rental_without_vat_fact", "income_without_vat_fact", "profit_plan",
		"income_without_vat_plan", "expenses_without_vat_plan", "manager", "organization_uid", "segment_decryption",
		"organization", "client_uid", "expenses_without_vat_fact", "department", "client", "segment",
		"order_number", "profit_fact", "order_creation_date", "original_order_creation_date_string",
		"original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var NaturalIndicatorsRailwayReceptionDispatch = register(&Descriptor{
	Table:       "natural_indicators_railway_reception_dispatch",
	Sentinel:    "original_date_string",
	IntColumns:  []string{"container_size", "container_count", "teu", "internal_customs_transit"},
	DateColumns: []string{"date"},
	Columns: []string{
		"key_id", "uuid", "date", "original_date_string", "organization", "terminal",
		"client_uid", "client", "operation", "is_empty", "container_count", "container_size",
		"teu", "internal_customs_transit", "other_transportation", "container_train",
		"wagon_dispatch_count", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var Accounts = register(&Descriptor{
	Table:        "accounts",
	Sentinel:     "original_date_string",
	FloatColumns: []string{"profit_account_rub", "profit_account"},
	DateColumns:  []string{"date"},
	Columns: []string{
		"key_id", "uuid", "date", "original_date_string", "organization", "client_uid", "client", "department",
		"currency", "profit_account_rub", "profit_account", "client_inn", "unit_of_measurement", "order_number",
		"segment", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var FreightRates = register(&Descriptor{
	Table:         "freight_rates",
	Sentinel:      "original_date_string",
	LowercaseKeys: true,
	FloatColumns:  []string{"rate"},
	IntColumns:    []string{"oversized_width", "oversized_height", "oversized_length"},
	DateColumns:   []string{"expiration_date", "start_date"},
	BoolColumns:   []string{"priority", "oversized", "dangerous", "special_rate", "guideline"},
	Columns: []string{
		"key_id", "uuid", "freight_rate_uid", "priority", "oversized_width", "oversized_height", "oversized_length",
		"oversized", "dangerous", "client", "imo", "pol", "pod", "type_pol", "type_pod", "expiration_date",
		"start_date", "original_date_string", "forwarder", "guideline", "through_service", "rate_owner", "line",
		"size_and_type", "rate", "currency", "special_rate", "code_special_rate", "operator", "container_owner",
		"original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var MarginalityOrdersActDate = register(&Descriptor{
	Table:    "marginality_orders_act_date",
	Sentinel: "original_act_creation_date_string",
	FloatColumns: []string{
		"profit_plan", "variable_costs_plan", "margin_plan", "profit_fact", "variable_costs_fact",
		"margin_fact", "margin_fact_percent", "margin_fact_per_unit",
	},
	IntColumns:  []string{"count_ktk_by_order", "count_ktk_by_operation"},
	DateColumns: []string{"act_creation_date", "act_creation_date_max"},
	Columns: []string{
		"key_id", "uuid", "act_creation_date", "act_creation_date_max", "original_act_creation_date_string",
		"department", "direction", "client_uid", "client", "manager", "operation_type", "segment", "order_number",
		"count_ktk_by_order", "count_ktk_by_operation", "profit_plan", "variable_costs_plan", "margin_plan",
		"profit_fact", "variable_costs_fact", "margin_fact", "margin_fact_percent", "margin_fact_per_unit",
		"original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var RusconProducts = register(&Descriptor{
	Table:    "ruscon_products",
	Sentinel: "original_kp_date_string",
	FloatColumns: []string{
		"kp_amount", "kp_margin", "kp_margin_amount", "kp_margin_container", "kp_amount_cost",
		"kp_revenue_rate_container", "kp_cost_container",
	},
	IntColumns:  []string{"container_count_40", "container_count_20", "container_count"},
	DateColumns: []string{"kp_date"},
	BoolColumns: []string{"dangerous"},
	Columns: []string{
		"key_id", "uuid", "product", "stepname", "department", "key", "manager_division", "manager", "counterparty",
		"crm_counterparty_number", "project_number", "kp_number", "kp_date", "direction", "container_size",
		"container_type", "container_count", "container_count_40", "container_count_20", "cargo", "kp_currency",
		"kp_amount", "kp_amount_cost", "kp_margin", "kp_margin_amount", "kp_margin_container",
		"kp_revenue_rate_container", "kp_cost_container", "discharge_point", "loading_point", "dangerous",
		"original_kp_date_string", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var ReferenceLocations = register(&Descriptor{
	Table:        "reference_locations",
	FloatColumns: []string{"lat_port", "long_port"},
	BoolColumns:  []string{"is_border_crossing"},
	Columns: []string{
		"key_id", "uuid", "seaport", "seaport_eng", "seaport_code", "seaport_rus", "key", "type", "status",
		"postcode", "lat_port", "long_port", "country", "code", "code_alpha_two", "station_code",
		"is_border_crossing", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var TerminalsCapacity = register(&Descriptor{
	Table:       "terminals_capacity",
	Sentinel:    "original_date_string",
	IntColumns:  []string{"container_size", "teu", "container_count"},
	DateColumns: []string{"date"},
	Columns: []string{
		"key_id", "uuid", "stock", "terminal", "date", "original_date_string", "container_size", "container_count",
		"teu", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var ManagerEvaluation = register(&Descriptor{
	Table:       "manager_evaluation",
	Database:    "DO",
	Sentinel:    "original_date_string",
	IntColumns:  []string{"evaluation"},
	DateColumns: []string{"evaluation_date"},
	Columns: []string{
		"key_id", "uuid", "manager_id", "manager_fullname", "manager_email", "manager_position", "pluralist",
		"manager_division", "manager_department", "manager_status", "portal_profile", "evaluation", "comment",
		"evaluation_date", "original_date_string", "company_email", "message_id", "original_file_parsed_on", "sign",
		"is_obsolete_date",
	},
})

var ReferenceCounterparties = register(&Descriptor{
	Table:       "reference_counterparties",
	Database:    "DO",
	BoolColumns: []string{"is_control", "is_foreign_company"},
	Columns: []string{
		"key_id", "uuid", "name", "do_uid", "status", "head_counterparty", "included_in_group",
		"legal_physical_entity", "full_name", "inn", "kpp", "okpo", "ogrn", "is_foreign_company",
		"deletion_flag", "registration_country", "registration_number", "tax_number", "counterparty_type",
		"supplier_customer_type", "classification", "contract_type", "relationship_type", "planned_turnover",
		"manager", "legal_address", "actual_address", "postal_address", "telephone_number", "email", "website",
		"organization_uid", "organization", "is_control", "original_file_parsed_on", "sign", "is_obsolete_date",
	},
})

var ReferenceContracts = register(&Descriptor{
	Table:    "reference_contracts",
	Database: "DO",
	DateColumns: []string{
		"contract_date", "date_of_creation", "approvals_date", "signing_date",
		"returned_archive_date", "date_tripartite_agreement",
	},
	BoolColumns: []string{"returned_archive", "additional_agreement"},
	Columns: []string{
		"key_id", "uuid", "do_uid", "heading", "template_name", "contract_number", "contract_date",
		"type_of_relationship", "additional_agreement", "organization_uid", "organization_inn", "organization_name",
		"counterparty_uid", "counterparty_inn", "counterparty_name", "prepared_uid", "prepared_name",
		"prepared_cfo", "responsible_uid", "responsible_name", "responsible_cfo", "document_form",
		"date_of_creation", "approval_status", "approvals_date", "signing_status", "signing_date",
		"returned_archive", "returned_archive_date", "date_tripartite_agreement", "number_tripartite_agreement",
		"original_file_parsed_on", "sign", "is_obsolete_date",
	},
})
